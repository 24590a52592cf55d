// Package remux defines the external whole-stream remux service and its ffmpeg implementation.
package remux

import "context"

// ContainerType is an output container the service can write.
type ContainerType string

const (
	// MP4 is the MPEG-4 Part 14 container.
	MP4 ContainerType = "mp4"
	// QuickTime is the QuickTime / MOV container.
	QuickTime ContainerType = "mov"
	// MPEGTS is the MPEG-2 transport stream container.
	MPEGTS ContainerType = "mpegts"
	// Matroska is the Matroska container.
	Matroska ContainerType = "matroska"
)

// Extension returns the file extension, including the dot, used for files of this type.
func (c ContainerType) Extension() string {
	switch c {
	case MP4:
		return ".mp4"
	case QuickTime:
		return ".mov"
	case MPEGTS:
		return ".ts"
	case Matroska:
		return ".mkv"
	case "":
		return ""
	default:
		return "." + string(c)
	}
}

// ProgressFunc receives the fraction of the remux completed so far, in [0, 1].
type ProgressFunc func(fraction float64)

// Service repackages a whole stream into a local file without re-encoding.
type Service interface {
	// SupportedContainerTypes lists the containers the service can produce for source.
	SupportedContainerTypes(ctx context.Context, source string) ([]ContainerType, error)
	// Remux writes source to output as container. A transient abort is reported as
	// an error for which IsOperationStopped returns true.
	Remux(ctx context.Context, source, output string, container ContainerType, onProgress ProgressFunc) error
}

// ChooseContainer picks MP4 when offered, then QuickTime, then the first supported type.
// It returns false when supported is empty.
func ChooseContainer(supported []ContainerType) (ContainerType, bool) {
	if len(supported) == 0 {
		return "", false
	}
	for _, preferred := range []ContainerType{MP4, QuickTime} {
		for _, c := range supported {
			if c == preferred {
				return c, true
			}
		}
	}
	return supported[0], true
}
