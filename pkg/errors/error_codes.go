package errors

// Error codes grouped by component.
const (
	// Input (1000-1099)
	ErrInputEmpty       = 1000
	ErrInputUnparseable = 1001
	ErrInputMissingHost = 1002
	ErrConfigInvalid    = 1050
	ErrConfigUnreadable = 1051

	// Playlist fetch and parse (1100-1199)
	ErrPlaylistRequest    = 1100
	ErrPlaylistHTTPStatus = 1101
	ErrPlaylistNotUTF8    = 1102
	ErrPlaylistRead       = 1103
	ErrPlaylistTooLarge   = 1104
	ErrNoPlayableVariant  = 1150
	ErrEmptyMediaPlaylist = 1160

	// Remux service (1200-1299)
	ErrRemuxFailed           = 1200
	ErrRemuxUnavailable      = 1201
	ErrNoSupportedOutputType = 1210

	// Segment download (1300-1399)
	ErrSegmentRequest    = 1300
	ErrSegmentHTTPStatus = 1301
	ErrSegmentWrite      = 1302

	// Merge, save and filesystem (1400-1499)
	ErrWorkDirCreate         = 1400
	ErrMergeFailed           = 1401
	ErrDiskSpaceInsufficient = 1402
	ErrSaveFailed            = 1403
	ErrHistoryStore          = 1404

	// Cancellation (1500)
	ErrJobCancelled = 1500
)
