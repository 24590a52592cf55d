package errors

// ErrorMessages holds the standard user-facing message for each code.
var ErrorMessages = map[int]string{
	ErrInputEmpty:       "No URL was provided.",
	ErrInputUnparseable: "The URL could not be parsed. Check for typos and try again.",
	ErrInputMissingHost: "The URL has no host name.",
	ErrConfigInvalid:    "The configuration is invalid.",
	ErrConfigUnreadable: "The configuration file could not be read.",

	ErrPlaylistRequest:    "The playlist could not be requested. Check your connection and try again.",
	ErrPlaylistHTTPStatus: "The server refused the playlist request.",
	ErrPlaylistNotUTF8:    "The server did not return a text playlist.",
	ErrPlaylistRead:       "The playlist response could not be read.",
	ErrPlaylistTooLarge:   "The playlist is larger than the allowed size.",
	ErrNoPlayableVariant:  "None of the stream variants could be loaded.",
	ErrEmptyMediaPlaylist: "The media playlist does not list any segments.",

	ErrRemuxFailed:           "The stream could not be remuxed.",
	ErrRemuxUnavailable:      "The remux tool is not available.",
	ErrNoSupportedOutputType: "The remux tool offers no supported output container.",

	ErrSegmentRequest:    "A media segment could not be requested.",
	ErrSegmentHTTPStatus: "The server refused a media segment request.",
	ErrSegmentWrite:      "A media segment could not be written to disk.",

	ErrWorkDirCreate:         "The temporary working directory could not be created.",
	ErrMergeFailed:           "The media segments could not be merged.",
	ErrDiskSpaceInsufficient: "Not enough free disk space for the output file.",
	ErrSaveFailed:            "The output file could not be saved.",
	ErrHistoryStore:          "The download history could not be updated.",

	ErrJobCancelled: "The download was cancelled.",
}

// GetErrorMessage returns the standard message for an error code.
func GetErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "Unknown error."
}
