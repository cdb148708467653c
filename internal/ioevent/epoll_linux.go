//go:build linux

package ioevent

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

type epollNotifier struct {
	epfd int
	mu   sync.Mutex
	regs map[int]any
}

func newPlatformNotifier() (Notifier, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epollNotifier{epfd: epfd, regs: make(map[int]any)}, nil
}

func toEpollEvents(i Interest) uint32 {
	var ev uint32
	if i&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if i&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (n *epollNotifier) Register(fd int, interest Interest, userData any) error {
	ev := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(n.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	n.mu.Lock()
	n.regs[fd] = userData
	n.mu.Unlock()
	return nil
}

func (n *epollNotifier) Modify(fd int, interest Interest) error {
	n.mu.Lock()
	_, ok := n.regs[fd]
	n.mu.Unlock()
	if !ok {
		return errUnregisteredFD(fd)
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(n.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (n *epollNotifier) Deregister(fd int) error {
	// Kernel requires a non-nil event pointer pre-3.something, though
	// modern kernels ignore it for DEL; pass one for portability.
	_ = unix.EpollCtl(n.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
	n.mu.Lock()
	delete(n.regs, fd)
	n.mu.Unlock()
	return nil
}

func (n *epollNotifier) Wait(dst []Event, timeoutMillis int) ([]Event, error) {
	raw := make([]unix.EpollEvent, MaxEvents)
	var nfds int
	var err error
	for {
		nfds, err = unix.EpollWait(n.epfd, raw, timeoutMillis)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return dst, err
	}
	dst = dst[:0]
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := 0; i < nfds; i++ {
		fd := int(raw[i].Fd)
		userData := n.regs[fd]
		e := Event{FD: fd, UserData: userData}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			e.Err = fmt.Errorf("ioevent: epoll reported error/hangup on fd %d (events=%#x)", fd, raw[i].Events)
		}
		if raw[i].Events&unix.EPOLLIN != 0 {
			e.Readable = true
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			e.Writable = true
		}
		dst = append(dst, e)
	}
	return dst, nil
}

func (n *epollNotifier) Close() error {
	return unix.Close(n.epfd)
}
