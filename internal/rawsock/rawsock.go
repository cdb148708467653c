// Package rawsock wraps the raw, non-blocking socket operations the
// dispatcher needs: bringing up the listening socket, accepting clients,
// and opening non-blocking connections to backends. Everything here
// operates on bare fds rather than net.Conn so the dispatcher can hand
// them straight to ioevent.Notifier without an fd-extraction step.
package rawsock

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// SetNonblocking flips O_NONBLOCK on fd without disturbing any other
// flags already set on it.
func SetNonblocking(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return fmt.Errorf("rawsock: fcntl F_GETFL: %w", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_NONBLOCK); err != nil {
		return fmt.Errorf("rawsock: fcntl F_SETFL O_NONBLOCK: %w", err)
	}
	return nil
}

// Listen creates a non-blocking IPv4 TCP listening socket bound to addr
// ("host:port"), with SO_REUSEADDR set and backlog pending connections.
func Listen(addr string, backlog int) (int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return -1, fmt.Errorf("rawsock: invalid listen address %q: %w", addr, err)
	}
	port, err := parsePort(portStr)
	if err != nil {
		return -1, fmt.Errorf("rawsock: invalid listen port %q: %w", addr, err)
	}
	ip := net.ParseIP(host)
	if host == "" {
		ip = net.IPv4zero
	} else if ip == nil {
		return -1, fmt.Errorf("rawsock: invalid listen host %q", host)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("rawsock: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("rawsock: setsockopt SO_REUSEADDR: %w", err)
	}
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip.To4())
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("rawsock: bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("rawsock: listen: %w", err)
	}
	if err := SetNonblocking(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Accept accepts one pending connection from listenFD, returning the new
// fd and the client's address in "ip:port" form. Returns unix.EAGAIN
// unchanged (by value, not sign-overloaded) when no connection is
// pending, so the dispatcher's accept loop can keep draining until it
// sees that specific error.
func Accept(listenFD int) (int, string, error) {
	fd, sa, err := unix.Accept(listenFD)
	if err != nil {
		return -1, "", err
	}
	if err := SetNonblocking(fd); err != nil {
		unix.Close(fd)
		return -1, "", err
	}
	return fd, sockaddrString(sa), nil
}

// ConnectNonblocking opens a non-blocking TCP connection to ip:port,
// returning the new fd immediately after connect() reports EINPROGRESS
// (the normal case) or success. The caller registers the fd for
// writability and checks SO_ERROR once it fires.
func ConnectNonblocking(ip net.IP, port uint16) (int, error) {
	v4 := ip.To4()
	if v4 == nil {
		return -1, fmt.Errorf("rawsock: only IPv4 backend addresses are supported, got %s", ip)
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("rawsock: socket: %w", err)
	}
	if err := SetNonblocking(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	sa := &unix.SockaddrInet4{Port: int(port)}
	copy(sa.Addr[:], v4)
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, fmt.Errorf("rawsock: connect %s:%d: %w", ip, port, err)
	}
	return fd, nil
}

// SocketError returns the pending SO_ERROR on fd, or nil if the last
// operation (typically a non-blocking connect) succeeded.
func SocketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

func parsePort(s string) (int, error) {
	var port int
	if _, err := fmt.Sscanf(s, "%d", &port); err != nil {
		return 0, err
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("%s:%d", ip.String(), a.Port)
	default:
		return ""
	}
}
