package atomicdate

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AndrewLester/atomicdate/internal/sntp"
)

const DefaultServerAddress = "time.nist.gov"

// Service keeps the offset to an SNTP server, synchronizing manually through
// Sync or automatically every sync period. It starts in manual mode.
type Service struct {
	client *Client

	lock   sync.Mutex // guards the fields below
	host   string
	port   int
	period time.Duration
	cancel context.CancelFunc // stops the current schedule
	closed bool

	// ctx lives until Close. Scheduled exchanges run on it so replacing the
	// schedule doesn't abandon an exchange in progress.
	ctx  context.Context
	stop context.CancelFunc

	exchange sync.Mutex // one synchronization at a time

	synced   atomic.Bool
	offset   atomic.Int64
	lastSync atomic.Int64
}

func NewService(config Config) (*Service, error) {
	client, err := NewClientWithConfig(config)
	if err != nil {
		return nil, err
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		client: client,
		host:   DefaultServerAddress,
		port:   sntp.DefaultPort,
		ctx:    ctx,
		stop:   stop,
	}, nil
}

func (s *Service) SetServerHost(host string) error {
	if host == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidArgument)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return fmt.Errorf("%w: service closed", ErrIllegalState)
	}
	s.host = host
	return nil
}

func (s *Service) SetServerPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidArgument, port)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return fmt.Errorf("%w: service closed", ErrIllegalState)
	}
	s.port = port
	return nil
}

// Server returns the configured server host and port.
func (s *Service) Server() (string, int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.host, s.port
}

// SetSyncPeriod replaces the synchronization schedule. Zero turns automatic
// synchronization off. The first automatic sync happens one period from now.
func (s *Service) SetSyncPeriod(period time.Duration) error {
	if period < 0 {
		return fmt.Errorf("%w: period<0", ErrInvalidArgument)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return fmt.Errorf("%w: service closed", ErrIllegalState)
	}

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.period = period

	if period > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go s.schedule(ctx, period)
	}
	return nil
}

func (s *Service) SyncPeriod() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.period
}

func (s *Service) schedule(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Service) tick() {
	// Skip this tick if the previous sync is still waiting on the server.
	if !s.exchange.TryLock() {
		debug("Sync still running, skipping tick")
		return
	}
	defer s.exchange.Unlock()

	if err := s.sync(s.ctx); err != nil && s.ctx.Err() == nil {
		log.Printf("Error synchronizing with the SNTP server: %v", err)
	}
}

// Sync runs one exchange now, waiting behind any exchange in progress.
func (s *Service) Sync(ctx context.Context) error {
	s.exchange.Lock()
	defer s.exchange.Unlock()
	return s.sync(ctx)
}

func (s *Service) sync(ctx context.Context) error {
	s.lock.Lock()
	host, port, closed := s.host, s.port, s.closed
	s.lock.Unlock()

	if closed {
		return fmt.Errorf("%w: service closed", ErrIllegalState)
	}

	offset, err := s.client.GetOffsetContext(ctx, host, port)
	if err != nil {
		return err
	}

	s.offset.Store(offset)
	s.lastSync.Store(sntp.NowMillis())
	s.synced.Store(true)
	info("Synchronized with", host, "offset:", offset)
	return nil
}

// GetTime returns the network time in milliseconds since the Unix epoch.
func (s *Service) GetTime() (int64, error) {
	offset, err := s.Offset()
	if err != nil {
		return 0, err
	}
	return sntp.NowMillis() + offset, nil
}

func (s *Service) Now() (time.Time, error) {
	ms, err := s.GetTime()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// Offset returns the cached network time offset in milliseconds.
func (s *Service) Offset() (int64, error) {
	if s.isClosed() {
		return 0, fmt.Errorf("%w: service closed", ErrIllegalState)
	}
	if !s.synced.Load() {
		return 0, ErrNotSynchronized
	}
	return s.offset.Load(), nil
}

// LastSync is the local time of the last successful exchange.
func (s *Service) LastSync() (time.Time, bool) {
	if !s.synced.Load() {
		return time.Time{}, false
	}
	return time.UnixMilli(s.lastSync.Load()), true
}

// Close stops the schedule and the client.
func (s *Service) Close() error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.stop()
	s.lock.Unlock()

	return s.client.Close()
}

func (s *Service) isClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}
