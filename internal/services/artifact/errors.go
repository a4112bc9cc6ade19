package artifact

import "errors"

// Rejections are per file and never partially stored.
var (
	ErrEmptyFile           = errors.New("file is empty")
	ErrDisallowedExtension = errors.New("file type not allowed")
	ErrFileTooLarge        = errors.New("file exceeds the size limit")
	ErrStorage             = errors.New("failed to store file")
)
