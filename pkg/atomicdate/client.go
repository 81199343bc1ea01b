package atomicdate

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/AndrewLester/atomicdate/internal/sntp"
)

const DefaultTimeout = 10 * time.Second

type Config struct {
	// LocalAddress is the host:port the client socket binds to. Empty lets
	// the system choose.
	LocalAddress string
	// Timeout bounds each query and each socket read. Zero means
	// DefaultTimeout.
	Timeout time.Duration
}

type Result struct {
	Offset      int64 // network time - local time (ms)
	Delay       int64 // round trip delay (ms)
	Stratum     byte
	ReferenceID string
	Response    *sntp.Message
}

// Client queries SNTP servers for the local clock offset. It handles one
// exchange at a time; concurrent queries wait for each other.
type Client struct {
	conn     *net.UDPConn
	listener *sntp.Listener
	sender   *sntp.Sender
	timeout  time.Duration

	query sync.Mutex // held for a whole exchange

	lock   sync.Mutex // guards holder and closed
	holder *holder
	closed bool
}

// holder is the single slot a pending exchange waits on.
type holder struct {
	request    sntp.Timestamp
	message    *sntp.Message
	receivedAt int64
	delivered  chan struct{}
}

func NewClient(timeout time.Duration) (*Client, error) {
	return NewClientWithConfig(Config{Timeout: timeout})
}

func NewClientWithConfig(config Config) (*Client, error) {
	if config.Timeout < 0 {
		return nil, fmt.Errorf("%w: timeout<0", ErrInvalidArgument)
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	var localAddr *net.UDPAddr
	if config.LocalAddress != "" {
		addr, err := net.ResolveUDPAddr("udp", config.LocalAddress)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		localAddr = addr
	}

	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: can't listen on %v/udp: %w", ErrNetwork, localAddr, err)
	}

	client := &Client{
		conn:    conn,
		sender:  sntp.NewSender(conn),
		timeout: timeout,
	}
	client.listener = sntp.NewListener(conn, client.onMessage)
	client.listener.SetReadTimeout(timeout)
	client.listener.Start()

	info("Client listening on", conn.LocalAddr())
	return client, nil
}

func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// GetOffset returns the network time offset in milliseconds.
func (c *Client) GetOffset(host string, port int) (int64, error) {
	return c.GetOffsetContext(context.Background(), host, port)
}

func (c *Client) GetOffsetContext(ctx context.Context, host string, port int) (int64, error) {
	result, err := c.Query(ctx, host, port)
	if err != nil {
		return 0, err
	}
	return result.Offset, nil
}

// Query runs one request/response exchange with the server.
func (c *Client) Query(ctx context.Context, host string, port int) (*Result, error) {
	if host == "" {
		return nil, fmt.Errorf("%w: host is empty", ErrInvalidArgument)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidArgument, port)
	}
	if c.isClosed() {
		return nil, fmt.Errorf("%w: client closed", ErrIllegalState)
	}

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	return c.exchange(ctx, addr)
}

func (c *Client) exchange(ctx context.Context, addr *net.UDPAddr) (*Result, error) {
	c.query.Lock()
	defer c.query.Unlock()

	request := sntp.NewMessage()
	request.Transmit = sntp.FromTime(time.Now())

	pending := &holder{request: request.Transmit, delivered: make(chan struct{})}

	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return nil, fmt.Errorf("%w: client closed", ErrIllegalState)
	}
	c.holder = pending
	c.lock.Unlock()

	defer func() {
		c.lock.Lock()
		c.holder = nil
		c.lock.Unlock()
	}()

	if err := c.sender.Send(request, addr.IP, addr.Port); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-pending.delivered:
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.lock.Lock()
	response, t4 := pending.message, pending.receivedAt
	c.lock.Unlock()

	if response == nil {
		return nil, fmt.Errorf("%w: no reply from %v within %v", ErrTimeout, addr, c.timeout)
	}

	// t1 - originate timestamp, our transmit time echoed back.
	// t2 - receive timestamp.
	// t3 - transmit timestamp.
	// t4 - destination timestamp, local arrival time.
	t1 := response.Originate.LocalMillis()
	t2 := response.Receive.LocalMillis()
	t3 := response.Transmit.LocalMillis()

	result := &Result{
		Offset:      computeOffset(t1, t2, t3, t4),
		Delay:       computeDelay(t1, t2, t3, t4),
		Stratum:     response.Stratum,
		ReferenceID: response.ReferenceIDString(),
		Response:    response,
	}
	info("Query", addr, "offset:", result.Offset, "delay:", result.Delay, "stratum:", result.Stratum)
	return result, nil
}

func (c *Client) onMessage(message *sntp.Message, arrival int64) {
	c.lock.Lock()
	defer c.lock.Unlock()

	pending := c.holder
	if pending == nil || pending.message != nil {
		debug("Discarding unsolicited message, originate:", message.Originate)
		return
	}
	if message.Mode != sntp.SERVER && message.Mode != sntp.BROADCAST {
		debug("Discarding message with mode", message.Mode)
		return
	}
	if message.Originate != pending.request {
		debug("Discarding reply to another request, originate:", message.Originate, "want:", pending.request)
		return
	}

	pending.message = message
	pending.receivedAt = arrival
	close(pending.delivered)
}

// Close stops the listener and releases the socket. A query still waiting
// for its reply is not interrupted; it fails on its own timeout.
func (c *Client) Close() error {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return nil
	}
	c.closed = true
	c.lock.Unlock()

	c.listener.Stop()
	err := c.conn.Close()
	<-c.listener.Done()
	return err
}

func (c *Client) isClosed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.closed
}

// computeOffset is the standard NTP clock offset estimator.
func computeOffset(t1, t2, t3, t4 int64) int64 {
	return ((t2 - t1) + (t3 - t4)) / 2
}

func computeDelay(t1, t2, t3, t4 int64) int64 {
	return (t4 - t1) - (t3 - t2)
}

func (c *Client) String() string {
	return c.conn.LocalAddr().String()
}
