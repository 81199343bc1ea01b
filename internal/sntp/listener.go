package sntp

import (
	"errors"
	"log"
	"net"
	"os"
	"sync/atomic"
	"time"
)

// MessageHandler receives each decoded message with its local arrival time in
// milliseconds since the Unix epoch.
type MessageHandler func(message *Message, arrival int64)

// Listener runs a receive loop on a socket owned by the caller. Stop the
// listener first, then close the socket to unblock the pending read.
type Listener struct {
	conn        net.PacketConn
	onMessage   MessageHandler
	readTimeout time.Duration

	listening atomic.Bool
	started   atomic.Bool
	done      chan struct{}
}

func NewListener(conn net.PacketConn, onMessage MessageHandler) *Listener {
	return &Listener{
		conn:      conn,
		onMessage: onMessage,
		done:      make(chan struct{}),
	}
}

// SetReadTimeout bounds each blocking read. Must be called before Start.
func (l *Listener) SetReadTimeout(timeout time.Duration) {
	l.readTimeout = timeout
}

func (l *Listener) Start() {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	l.listening.Store(true)
	go l.receive()
}

func (l *Listener) Stop() {
	l.listening.Store(false)
}

func (l *Listener) IsListening() bool {
	return l.listening.Load()
}

// Done is closed once the receive loop has exited.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

func (l *Listener) receive() {
	defer close(l.done)

	packet := make([]byte, MaxPacketLength)

	for l.listening.Load() {
		if l.readTimeout > 0 {
			l.conn.SetReadDeadline(time.Now().Add(l.readTimeout))
		}

		n, addr, err := l.conn.ReadFrom(packet)
		arrival := NowMillis()
		if err != nil {
			// Closing the socket is how the owner unblocks us.
			if !l.listening.Load() {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				info("Listener socket closed:", l.conn.LocalAddr())
				return
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				debug("Listener read timeout on", l.conn.LocalAddr())
				continue
			}

			log.Printf("error reading on %s/udp: %s", l.conn.LocalAddr(), err)
			continue
		}

		message, err := Decode(packet[:n])
		if err != nil {
			if l.listening.Load() {
				log.Printf("Error reading packet from %v: %v", addr, err)
			}
			continue
		}

		debug("Received from", addr, "stratum:", message.Stratum, "mode:", message.Mode)
		if l.onMessage != nil {
			l.onMessage(message, arrival)
		}
	}
}
