package engine

import "errors"

var (
	ErrForbidden      = errors.New("forbidden")
	ErrNotCancellable = errors.New("not cancellable")
)
