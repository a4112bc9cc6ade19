package admin

import "errors"

var (
	ErrInvalidDecision = errors.New("decision must be approve or reject")
	ErrInvalidStatus   = errors.New("unknown application status")
	ErrNotDecidable    = errors.New("only submitted applications can be decided")
)
