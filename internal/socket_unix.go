//go:build darwin || netbsd || freebsd || openbsd || dragonfly || linux

package internal

import (
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// DialTCP starts a non-blocking TCP connect to addr. If the handshake has
// not completed by the time it returns, inProgress is true: the fd becomes
// writable once it does, and ConnectError then reports how it went.
func DialTCP(network, addr string) (fd int, inProgress bool, err error) {
	remoteAddr, err := net.ResolveTCPAddr(network, addr)
	if err != nil {
		return -1, false, err
	}

	domain, sa := toSockaddr(remoteAddr)

	fd, err = unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, false, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, false, os.NewSyscallError("set_nonblock", err)
	}

	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		_ = unix.Close(fd)
		return -1, false, os.NewSyscallError("tcp_no_delay", err)
	}

	for {
		err = unix.Connect(fd, sa)
		if err != unix.EINTR {
			break
		}
	}
	switch err {
	case nil:
		return fd, false, nil
	case unix.EINPROGRESS, unix.EALREADY, unix.EAGAIN:
		// https://man7.org/linux/man-pages/man2/connect.2.html#EINPROGRESS
		return fd, true, nil
	default:
		_ = unix.Close(fd)
		return -1, false, os.NewSyscallError("connect", err)
	}
}

// ConnectError returns the outcome of a connect that DialTCP left in
// progress. Call it once fd is writable.
func ConnectError(fd int) error {
	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return os.NewSyscallError("getsockopt", err)
	}
	if soErr != 0 {
		return os.NewSyscallError("connect", unix.Errno(soErr))
	}
	return nil
}

// Write writes as much of b as the non-blocking fd accepts without
// blocking. A full send buffer is not an error: n is then short.
func Write(fd int, b []byte) (n int, err error) {
	for n < len(b) {
		k, err := unix.Write(fd, b[n:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return n, nil
		case err != nil:
			return n, os.NewSyscallError("write", err)
		}
		n += k
	}
	return n, nil
}

func toSockaddr(addr *net.TCPAddr) (int, unix.Sockaddr) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa
	}

	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	if addr.Zone != "" {
		if iff, err := net.InterfaceByName(addr.Zone); err == nil {
			sa.ZoneId = uint32(iff.Index)
		}
	}
	return unix.AF_INET6, sa
}

