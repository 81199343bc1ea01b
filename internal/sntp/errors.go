package sntp

import "errors"

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrIllegalState    = errors.New("illegal state")
	ErrMalformedPacket = errors.New("malformed packet")
	ErrNetwork         = errors.New("network error")
	ErrTimeout         = errors.New("timed out waiting for the server")
	ErrNotSynchronized = errors.New("not synchronized")
)
