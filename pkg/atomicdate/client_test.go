package atomicdate

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/AndrewLester/atomicdate/internal/sntp"
	"github.com/AndrewLester/atomicdate/internal/sntptest"
	"github.com/beevik/ntp"
	"golang.org/x/net/nettest"
)

func TestComputeOffset(t *testing.T) {
	tests := []struct {
		name           string
		t1, t2, t3, t4 int64
		offset, delay  int64
	}{
		{"server ahead", 1000, 2000, 2100, 1100, 1000, 0},
		{"server behind", 5000, 3010, 3020, 5030, -2000, 20},
		{"in sync", 1000, 1005, 1006, 1011, 0, 10},
		{"truncating division", 0, 1, 1, 1, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeOffset(tt.t1, tt.t2, tt.t3, tt.t4); got != tt.offset {
				t.Errorf("expected offset %d, got %d", tt.offset, got)
			}
			if got := computeDelay(tt.t1, tt.t2, tt.t3, tt.t4); got != tt.delay {
				t.Errorf("expected delay %d, got %d", tt.delay, got)
			}
		})
	}
}

func newTestServer(t *testing.T, offset time.Duration) *sntptest.Server {
	t.Helper()

	server, err := sntptest.NewServer(offset)
	if err != nil {
		t.Fatalf("failed to start test server: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server
}

func newTestClient(t *testing.T, timeout time.Duration) *Client {
	t.Helper()

	client, err := NewClient(timeout)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestGetOffsetEndToEnd(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
	}{
		{"server ahead", time.Hour},
		{"server behind", -90 * time.Second},
		{"in sync", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, tt.offset)
			client := newTestClient(t, 2*time.Second)

			offset, err := client.GetOffset(server.Host(), server.Port())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			diff := offset - tt.offset.Milliseconds()
			if diff < -50 || diff > 50 {
				t.Errorf("expected offset ~%dms, got %dms", tt.offset.Milliseconds(), offset)
			}
		})
	}
}

func TestQueryKnownServerTimestamps(t *testing.T) {
	server := newTestServer(t, 0)
	// Receive and transmit are both 1000ms after the originate timestamp, so
	// offset = (2000 - delay) / 2 whatever the loopback delay is.
	server.SetResponder(func(request *sntp.Message, arrival int64) *sntp.Message {
		serverTime := sntp.FromLocalMillis(request.Transmit.LocalMillis() + 1000)

		reply := sntp.NewMessage()
		reply.Mode = sntp.SERVER
		reply.Stratum = sntp.STRATUM_PRIMARY
		reply.Originate = request.Transmit
		reply.Receive = serverTime
		reply.Transmit = serverTime
		return reply
	})
	client := newTestClient(t, 2*time.Second)

	result, err := client.Query(context.Background(), server.Host(), server.Port())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Delay < 0 || result.Delay > 20 {
		t.Fatalf("unexpected loopback delay %dms", result.Delay)
	}
	if want := (2000 - result.Delay) / 2; result.Offset != want {
		t.Errorf("expected offset %dms for delay %dms, got %dms", want, result.Delay, result.Offset)
	}
}

func TestRequestTransmitHasSubMillisecondResolution(t *testing.T) {
	server := newTestServer(t, 0)
	var lock sync.Mutex
	var transmits []sntp.Timestamp
	server.SetResponder(func(request *sntp.Message, arrival int64) *sntp.Message {
		lock.Lock()
		transmits = append(transmits, request.Transmit)
		lock.Unlock()

		reply := sntp.NewMessage()
		reply.Mode = sntp.SERVER
		reply.Stratum = sntp.STRATUM_PRIMARY
		reply.Originate = request.Transmit
		reply.Receive = sntp.FromLocalMillis(arrival)
		reply.Transmit = sntp.Now()
		return reply
	})
	client := newTestClient(t, 2*time.Second)

	for i := 0; i < 20; i++ {
		if _, err := client.GetOffset(server.Host(), server.Port()); err != nil {
			t.Fatalf("query %d failed: %v", i, err)
		}
	}

	lock.Lock()
	defer lock.Unlock()
	seen := map[sntp.Timestamp]bool{}
	subMillisecond := false
	for _, transmit := range transmits {
		if seen[transmit] {
			t.Errorf("transmit timestamp %v reused", transmit)
		}
		seen[transmit] = true
		if transmit.Time().Nanosecond()%int(time.Millisecond) != 0 {
			subMillisecond = true
		}
	}
	if !subMillisecond {
		t.Error("expected transmit timestamps finer than a millisecond")
	}
}

func TestQueryResult(t *testing.T) {
	server := newTestServer(t, 5*time.Second)
	client := newTestClient(t, 2*time.Second)

	result, err := client.Query(context.Background(), server.Host(), server.Port())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Stratum != sntp.STRATUM_PRIMARY {
		t.Errorf("expected stratum 1, got %d", result.Stratum)
	}
	if result.ReferenceID != "GPS" {
		t.Errorf("expected reference ID GPS, got %q", result.ReferenceID)
	}
	if result.Delay < 0 || result.Delay > 100 {
		t.Errorf("unexpected loopback delay %dms", result.Delay)
	}
	if result.Response.Mode != sntp.SERVER {
		t.Errorf("expected server mode, got %d", result.Response.Mode)
	}
}

func TestGetOffsetSequentialQueries(t *testing.T) {
	server := newTestServer(t, time.Minute)
	client := newTestClient(t, 2*time.Second)

	for i := 0; i < 5; i++ {
		if _, err := client.GetOffset(server.Host(), server.Port()); err != nil {
			t.Fatalf("query %d failed: %v", i, err)
		}
	}
	if got := server.Requests(); got != 5 {
		t.Errorf("expected 5 requests, got %d", got)
	}
}

func TestGetOffsetConcurrentQueriesAreSerialized(t *testing.T) {
	server := newTestServer(t, time.Minute)
	client := newTestClient(t, 2*time.Second)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			offset, err := client.GetOffset(server.Host(), server.Port())
			if err == nil && (offset < 59_950 || offset > 60_050) {
				err = errors.New("offset out of range")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent query failed: %v", err)
		}
	}
}

func TestGetOffsetTimeout(t *testing.T) {
	silent, err := nettest.NewLocalPacketListener("udp")
	if err != nil {
		t.Fatal(err)
	}
	defer silent.Close()
	addr := silent.LocalAddr().(*net.UDPAddr)

	client := newTestClient(t, 50*time.Millisecond)

	start := time.Now()
	_, err = client.GetOffset(addr.IP.String(), addr.Port)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed < 50*time.Millisecond || elapsed > time.Second {
		t.Errorf("expected to give up after ~50ms, took %v", elapsed)
	}
}

func TestLateReplyIsNotMisattributed(t *testing.T) {
	server := newTestServer(t, time.Hour)
	server.SetSilent(true)
	client := newTestClient(t, 50*time.Millisecond)

	if _, err := client.GetOffset(server.Host(), server.Port()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// A stale reply echoing some other transmit timestamp must be dropped.
	stale := sntp.NewMessage()
	stale.Mode = sntp.SERVER
	stale.Originate = sntp.FromLocalMillis(1)
	client.onMessage(stale, sntp.NowMillis())

	server.SetSilent(false)
	offset, err := client.GetOffset(server.Host(), server.Port())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offset < time.Hour.Milliseconds()-50 || offset > time.Hour.Milliseconds()+50 {
		t.Errorf("expected offset ~1h, got %dms", offset)
	}
}

func TestGetOffsetContextCancelled(t *testing.T) {
	server := newTestServer(t, 0)
	server.SetSilent(true)
	client := newTestClient(t, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.GetOffsetContext(ctx, server.Host(), server.Port())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestGetOffsetInvalidArguments(t *testing.T) {
	client := newTestClient(t, time.Second)

	tests := []struct {
		name string
		host string
		port int
	}{
		{"empty host", "", sntp.DefaultPort},
		{"port zero", "127.0.0.1", 0},
		{"port too large", "127.0.0.1", 70000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := client.GetOffset(tt.host, tt.port); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestNewClientNegativeTimeout(t *testing.T) {
	if _, err := NewClient(-time.Second); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestNewClientDefaultTimeout(t *testing.T) {
	client := newTestClient(t, 0)
	if client.Timeout() != DefaultTimeout {
		t.Errorf("expected %v, got %v", DefaultTimeout, client.Timeout())
	}
}

func TestNewClientWithLocalAddress(t *testing.T) {
	client, err := NewClientWithConfig(Config{LocalAddress: "127.0.0.1:0", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	addr := client.LocalAddr().(*net.UDPAddr)
	if !addr.IP.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Errorf("expected client bound to loopback, got %v", addr)
	}
}

func TestClosedClient(t *testing.T) {
	server := newTestServer(t, 0)

	client, err := NewClient(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	if _, err := client.GetOffset(server.Host(), server.Port()); !errors.Is(err, ErrIllegalState) {
		t.Errorf("expected ErrIllegalState, got %v", err)
	}
}

func TestCloseDoesNotWakeWaiter(t *testing.T) {
	server := newTestServer(t, 0)
	server.SetSilent(true)

	client, err := NewClient(200 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		_, err := client.GetOffset(server.Host(), server.Port())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	client.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
		if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
			t.Errorf("waiter returned after %v, before its timeout", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter hung after close")
	}
}

// The test server must be understood by an independent client implementation.
func TestServerCompatibleWithBeevikNTP(t *testing.T) {
	server := newTestServer(t, 30*time.Second)

	response, err := ntp.QueryWithOptions(server.HostPort(), ntp.QueryOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("beevik/ntp query failed: %v", err)
	}
	if err := response.Validate(); err != nil {
		t.Fatalf("invalid response: %v", err)
	}

	diff := response.ClockOffset - 30*time.Second
	if diff < -50*time.Millisecond || diff > 50*time.Millisecond {
		t.Errorf("expected beevik/ntp offset ~30s, got %v", response.ClockOffset)
	}
	if response.Stratum != 1 {
		t.Errorf("expected stratum 1, got %d", response.Stratum)
	}
}
