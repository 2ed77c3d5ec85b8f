package playlist

import "github.com/cimena/cinecast/internal/errors"

const (
	ErrInvalidLink errors.Code = "invalid link"
)
