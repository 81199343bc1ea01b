package atomicdate

import "github.com/AndrewLester/atomicdate/internal/sntp"

var (
	ErrInvalidArgument = sntp.ErrInvalidArgument
	ErrIllegalState    = sntp.ErrIllegalState
	ErrMalformedPacket = sntp.ErrMalformedPacket
	ErrNetwork         = sntp.ErrNetwork
	ErrTimeout         = sntp.ErrTimeout
	ErrNotSynchronized = sntp.ErrNotSynchronized
)
