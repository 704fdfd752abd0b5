package imagecache

import "errors"

var (
	// ErrNilFetch is returned by Load when no fetch function is given.
	ErrNilFetch = errors.New("imagecache: nil fetch function")

	// ErrParsingConfig is returned when environment variables cannot be parsed into Config.
	ErrParsingConfig = errors.New("imagecache: failed to parse environment variables into config")
)
