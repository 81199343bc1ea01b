package sntp

import (
	"fmt"
	"net"
)

// Sender writes encoded messages to a socket it does not own.
type Sender struct {
	conn net.PacketConn
}

func NewSender(conn net.PacketConn) *Sender {
	return &Sender{conn: conn}
}

// Send issues exactly one datagram. There is no retry.
func (s *Sender) Send(message *Message, ip net.IP, port int) error {
	if message == nil {
		return fmt.Errorf("%w: message=nil", ErrInvalidArgument)
	}
	if ip == nil {
		return fmt.Errorf("%w: addr=nil", ErrInvalidArgument)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidArgument, port)
	}
	if s.conn == nil {
		return fmt.Errorf("%w: sender has no socket", ErrIllegalState)
	}

	encoded := Encode(message)
	addr := &net.UDPAddr{IP: ip, Port: port}
	if _, err := s.conn.WriteTo(encoded, addr); err != nil {
		return fmt.Errorf("%w: send to %v: %w", ErrNetwork, addr, err)
	}
	debug("Sent", len(encoded), "bytes to", addr)
	return nil
}
