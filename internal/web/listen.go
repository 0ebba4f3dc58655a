package web

import (
	"fmt"
	"net"
	"strconv"
)

// DefaultPortScan is the number of ports tried after the configured one
const DefaultPortScan = 100

// Listen opens a TCP listener on addr. When the port is taken, the next scan
// ports are tried in order and then an OS-assigned port. Port 0 is passed
// through unchanged.
func Listen(addr string, scan int) (net.Listener, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing listen address '%s': %w", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port '%s'", portStr)
	}

	if port == 0 {
		return net.Listen("tcp", addr)
	}

	for p := port; p <= port+scan && p <= 65535; p++ {
		if ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p))); err == nil {
			return ln, nil
		}
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, fmt.Errorf("no free port from %d to %d and no OS-assigned port: %w", port, port+scan, err)
	}

	return ln, nil
}
