// Package sntptest provides a loopback SNTP responder for tests.
package sntptest

import (
	"errors"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AndrewLester/atomicdate/internal/sntp"
	"golang.org/x/net/nettest"
)

// Server answers client requests as a stratum 1 server whose clock runs
// Offset ahead of the local clock.
type Server struct {
	Offset time.Duration

	conn     net.PacketConn
	silent   atomic.Bool
	delay    atomic.Int64 // nanoseconds
	requests atomic.Int64
	wg       sync.WaitGroup

	lock    sync.Mutex
	respond Responder
}

// Responder builds the reply to a request that arrived at arrival, in
// milliseconds since the Unix epoch.
type Responder func(request *sntp.Message, arrival int64) *sntp.Message

// NewServer starts a responder on a loopback UDP socket.
func NewServer(offset time.Duration) (*Server, error) {
	conn, err := nettest.NewLocalPacketListener("udp")
	if err != nil {
		return nil, err
	}

	server := &Server{Offset: offset, conn: conn}
	server.wg.Add(1)
	go server.serve()
	return server, nil
}

// SetSilent makes the server read and drop requests without replying.
func (s *Server) SetSilent(silent bool) {
	s.silent.Store(silent)
}

// SetDelay holds each reply back for d before sending it.
func (s *Server) SetDelay(d time.Duration) {
	s.delay.Store(int64(d))
}

// SetResponder replaces the default stratum 1 reply. Nil restores it.
func (s *Server) SetResponder(respond Responder) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.respond = respond
}

// Requests is the number of well-formed requests received so far.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *Server) Host() string {
	return s.Addr().IP.String()
}

func (s *Server) Port() int {
	return s.Addr().Port
}

// HostPort is host:port, suitable for net.Dial style APIs.
func (s *Server) HostPort() string {
	return net.JoinHostPort(s.Host(), strconv.Itoa(s.Port()))
}

func (s *Server) Close() error {
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()

	packet := make([]byte, sntp.MaxPacketLength)

	for {
		n, addr, err := s.conn.ReadFrom(packet)
		arrival := sntp.NowMillis()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			log.Printf("error reading on %s/udp: %s", s.conn.LocalAddr(), err)
			continue
		}

		request, err := sntp.Decode(packet[:n])
		if err != nil {
			log.Printf("Error reading packet: %v", err)
			continue
		}
		s.requests.Add(1)

		if s.silent.Load() || request.Mode != sntp.CLIENT {
			continue
		}

		if delay := time.Duration(s.delay.Load()); delay > 0 {
			time.Sleep(delay)
		}

		s.lock.Lock()
		respond := s.respond
		s.lock.Unlock()
		if respond == nil {
			respond = s.reply
		}

		reply := respond(request, arrival)
		if _, err := s.conn.WriteTo(sntp.Encode(reply), addr); err != nil {
			log.Printf("error writing to %s/udp: %s", addr, err)
		}
	}
}

func (s *Server) reply(request *sntp.Message, arrival int64) *sntp.Message {
	offset := s.Offset.Milliseconds()

	reply := sntp.NewMessage()
	reply.Version = request.Version
	reply.Mode = sntp.SERVER
	reply.Stratum = sntp.STRATUM_PRIMARY
	reply.Poll = request.Poll
	reply.Precision = -20
	reply.RootDispersion = 1.0 / 1024
	reply.SetReferenceID("GPS")
	reply.Reference = sntp.FromLocalMillis(arrival + offset - 1000)
	reply.Originate = request.Transmit
	reply.Receive = sntp.FromLocalMillis(arrival + offset)
	reply.Transmit = sntp.FromLocalMillis(sntp.NowMillis() + offset)
	return reply
}
