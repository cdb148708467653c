//go:build darwin || freebsd || netbsd || openbsd

package ioevent

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// registration tracks both the UserData a fd was registered with and its
// currently desired interest. Both kevent filters stay EV_ADD'd at the
// kernel for the fd's entire lifetime (see Register/Modify) so that
// EV_EOF/EV_ERROR keep surfacing even once a caller asks to stop watching
// one direction; Wait masks Readable/Writable against desired so an
// unrequested direction never reaches a handler, matching epoll's
// semantics where EPOLLERR/EPOLLHUP are always delivered regardless of
// the requested event mask.
type registration struct {
	userData any
	desired  Interest
}

type kqueueNotifier struct {
	kq   int
	mu   sync.Mutex
	regs map[int]registration
}

func newPlatformNotifier() (Notifier, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueNotifier{kq: kq, regs: make(map[int]registration)}, nil
}

// changesFor always arms both filters; it never issues EV_DELETE, so a fd
// stays monitored for EV_EOF/EV_ERROR on either filter no matter which
// direction the caller last asked for.
func (n *kqueueNotifier) changesFor(fd int) []unix.Kevent_t {
	return []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE},
	}
}

func (n *kqueueNotifier) Register(fd int, interest Interest, userData any) error {
	if _, err := unix.Kevent(n.kq, n.changesFor(fd), nil, nil); err != nil {
		return err
	}
	n.mu.Lock()
	n.regs[fd] = registration{userData: userData, desired: interest}
	n.mu.Unlock()
	return nil
}

func (n *kqueueNotifier) Modify(fd int, interest Interest) error {
	n.mu.Lock()
	reg, ok := n.regs[fd]
	if ok {
		reg.desired = interest
		n.regs[fd] = reg
	}
	n.mu.Unlock()
	if !ok {
		return errUnregisteredFD(fd)
	}
	return nil
}

func (n *kqueueNotifier) Deregister(fd int) error {
	delRead := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE}
	delWrite := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE}
	_, _ = unix.Kevent(n.kq, []unix.Kevent_t{delRead, delWrite}, nil, nil)
	n.mu.Lock()
	delete(n.regs, fd)
	n.mu.Unlock()
	return nil
}

func (n *kqueueNotifier) Wait(dst []Event, timeoutMillis int) ([]Event, error) {
	raw := make([]unix.Kevent_t, MaxEvents)
	var timeout *unix.Timespec
	if timeoutMillis >= 0 {
		ts := unix.NsecToTimespec(int64(timeoutMillis) * 1_000_000)
		timeout = &ts
	}
	var nfds int
	var err error
	for {
		nfds, err = unix.Kevent(n.kq, nil, raw, timeout)
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
		fd := int(raw[i].Ident)
		reg, ok := n.regs[fd]
		if !ok {
			continue
		}
		e := Event{FD: fd, UserData: reg.userData}
		if raw[i].Flags&unix.EV_ERROR != 0 {
			e.Err = fmt.Errorf("ioevent: kqueue reported error on fd %d (data=%d)", fd, raw[i].Data)
		}
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			e.Readable = reg.desired&Readable != 0
		case unix.EVFILT_WRITE:
			e.Writable = reg.desired&Writable != 0
		}
		if raw[i].Flags&unix.EV_EOF != 0 {
			if e.Readable || e.Writable {
				// The watched direction will discover EOF itself via a
				// zero-byte read/write; EV_EOF here means "peer
				// half-closed", not "nothing left to read", so let the
				// normal handler drain whatever is still buffered.
				e.Readable = true
			} else {
				// Neither direction is currently desired (e.g. Modify
				// stripped interest to 0 while waiting to resume
				// reading) - without this, a peer that disappears
				// while unwatched would never be noticed.
				e.Err = fmt.Errorf("ioevent: kqueue reported hangup on fd %d with no active interest", fd)
			}
		}
		if !e.Readable && !e.Writable && e.Err == nil {
			continue
		}
		dst = append(dst, e)
	}
	return dst, nil
}

func (n *kqueueNotifier) Close() error {
	return unix.Close(n.kq)
}
