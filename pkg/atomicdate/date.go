package atomicdate

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AndrewLester/atomicdate/internal/sntp"
)

// ServerAddressEnv names the environment variable holding the default server
// as host or host:port.
const ServerAddressEnv = "ATOMICDATE_SERVER_ADDRESS"

// ParseServerAddress splits host[:port], defaulting the port to 123.
func ParseServerAddress(address string) (string, int, error) {
	if address == "" {
		return "", 0, fmt.Errorf("%w: empty server address", ErrInvalidArgument)
	}

	host, portString, err := net.SplitHostPort(address)
	if err != nil {
		// No port, or a bare IPv6 address.
		if strings.Count(address, ":") == 1 {
			return "", 0, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		return strings.Trim(address, "[]"), sntp.DefaultPort, nil
	}
	if host == "" {
		return "", 0, fmt.Errorf("%w: missing host in %q", ErrInvalidArgument, address)
	}

	port, err := strconv.Atoi(portString)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("%w: invalid port %q", ErrInvalidArgument, portString)
	}
	return host, port, nil
}

// DefaultServer reads ServerAddressEnv, falling back to DefaultServerAddress.
func DefaultServer() (string, int, error) {
	address := os.Getenv(ServerAddressEnv)
	if address == "" {
		address = DefaultServerAddress
	}
	return ParseServerAddress(address)
}

// TimeFrom queries the server once with a throwaway client.
func TimeFrom(host string, port int) (time.Time, error) {
	client, err := NewClient(DefaultTimeout)
	if err != nil {
		return time.Time{}, err
	}
	defer client.Close()

	offset, err := client.GetOffset(host, port)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(sntp.NowMillis() + offset), nil
}

// Now returns the time according to the default server, or the local clock if
// the server can't be reached.
func Now() time.Time {
	host, port, err := DefaultServer()
	if err == nil {
		var now time.Time
		if now, err = TimeFrom(host, port); err == nil {
			return now
		}
	}

	log.Printf("Error synchronizing with the SNTP server: %v", err)
	return time.Now()
}
