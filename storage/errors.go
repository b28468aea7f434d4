package storage

import "errors"

var (
	ErrNotFound    = errors.New("storage: segment not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable segment mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
