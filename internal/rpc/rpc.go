package rpc

import (
	"errors"
	"net"
	netrpc "net/rpc"
	"os"
	"strings"
	"time"

	"github.com/AndrewLester/atomicdate/pkg/atomicdate"
)

const serviceName = "AtomicDate"

// Server exposes a Service to local clients over a unix socket.
type Server struct {
	Socket  string
	Service *atomicdate.Service

	listener net.Listener
}

type Status struct {
	Synchronized bool
	Offset       int64
	LastSync     time.Time
	Host         string
	Port         int
	Period       time.Duration
}

type handler struct {
	service *atomicdate.Service
}

func (h *handler) FetchTime(args int, reply *int64) error {
	ms, err := h.service.GetTime()
	if err != nil {
		return err
	}
	*reply = ms
	return nil
}

func (h *handler) FetchStatus(args int, reply *Status) error {
	host, port := h.service.Server()
	status := Status{
		Host:   host,
		Port:   port,
		Period: h.service.SyncPeriod(),
	}

	offset, err := h.service.Offset()
	if err != nil && !errors.Is(err, atomicdate.ErrNotSynchronized) {
		return err
	}
	if err == nil {
		status.Synchronized = true
		status.Offset = offset
		status.LastSync, _ = h.service.LastSync()
	}

	*reply = status
	return nil
}

// Listen binds the socket, replacing a stale one left by a previous run.
func (s *Server) Listen() error {
	err := os.Remove(s.Socket)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	l, err := net.Listen("unix", s.Socket)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// Serve accepts connections until Close is called.
func (s *Server) Serve() error {
	server := netrpc.NewServer()
	if err := server.RegisterName(serviceName, &handler{service: s.Service}); err != nil {
		return err
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go server.ServeConn(conn)
	}
}

func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

type Client struct {
	client *netrpc.Client
}

func Dial(socket string) (*Client, error) {
	client, err := netrpc.Dial("unix", socket)
	if err != nil {
		return nil, err
	}
	return &Client{client: client}, nil
}

// Time returns the daemon's network time. Errors from the service keep their
// identity, so errors.Is(err, atomicdate.ErrNotSynchronized) works.
func (c *Client) Time() (time.Time, error) {
	var ms int64
	if err := c.client.Call(serviceName+".FetchTime", 0, &ms); err != nil {
		return time.Time{}, remoteError(err)
	}
	return time.UnixMilli(ms), nil
}

func (c *Client) Status() (*Status, error) {
	var status Status
	if err := c.client.Call(serviceName+".FetchStatus", 0, &status); err != nil {
		return nil, remoteError(err)
	}
	return &status, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func remoteError(err error) error {
	var serverError netrpc.ServerError
	if !errors.As(err, &serverError) {
		return err
	}
	for _, known := range []error{atomicdate.ErrNotSynchronized, atomicdate.ErrIllegalState} {
		if string(serverError) == known.Error() || strings.HasPrefix(string(serverError), known.Error()+":") {
			return known
		}
	}
	return err
}
