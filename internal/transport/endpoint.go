package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the TCP port the server binds and the client dials.
const DefaultPort = 17729

const tcpScheme = "tcp://"

// ParseEndpoint turns "tcp://host:port" into a dialable or listenable
// address. A host of "*" means all interfaces.
func ParseEndpoint(endpoint string) (string, error) {
	rest, ok := strings.CutPrefix(endpoint, tcpScheme)
	if !ok {
		return "", fmt.Errorf("%w: %q: want %s", ErrInvalidEndpoint, endpoint, tcpScheme)
	}
	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, endpoint, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return "", fmt.Errorf("%w: %q: bad port", ErrInvalidEndpoint, endpoint)
	}
	if host == "*" {
		host = ""
	}
	return net.JoinHostPort(host, port), nil
}

// BindEndpoint returns the listen endpoint for port on all interfaces.
func BindEndpoint(bind string, port int) string {
	if bind == "" {
		bind = "*"
	}
	return tcpScheme + net.JoinHostPort(bind, strconv.Itoa(port))
}

// TCPEndpoint returns the endpoint a client dials for host and port.
func TCPEndpoint(host string, port int) string {
	return tcpScheme + net.JoinHostPort(host, strconv.Itoa(port))
}
