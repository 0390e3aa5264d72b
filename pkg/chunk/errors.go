package chunk

import "errors"

var (
	errInvalidChunkSize   = errors.New("chunk size must be positive")
	errInvalidOverlapSize = errors.New("overlap size must be non-negative and smaller than chunk size")
)
