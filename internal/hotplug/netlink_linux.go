// Copyright (C) 2012 The Android Open Source Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux

package hotplug

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ueventGroup is the kernel's kobject uevent multicast group.
const ueventGroup = 1

// NetlinkSource receives kernel uevents from a NETLINK_KOBJECT_UEVENT
// socket. Interrupt wakes a blocked Wait through an eventfd.
type NetlinkSource struct {
	fd   int
	wake int

	closeOnce sync.Once
}

func OpenUevent() (*NetlinkSource, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("opening uevent socket: %w", err)
	}
	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: ueventGroup}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("binding uevent socket: %w", err)
	}
	src, err := newNetlinkSource(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return src, nil
}

// newNetlinkSource wraps a bound datagram socket. The caller keeps fd on
// error.
func newNetlinkSource(fd int) (*NetlinkSource, error) {
	wake, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("creating eventfd: %w", err)
	}
	return &NetlinkSource{fd: fd, wake: wake}, nil
}

func (s *NetlinkSource) Wait() error {
	fds := []unix.PollFd{
		{Fd: int32(s.fd), Events: unix.POLLIN},
		{Fd: int32(s.wake), Events: unix.POLLIN},
	}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if fds[1].Revents != 0 {
			return ErrClosed
		}
		if fds[0].Revents&(unix.POLLHUP|unix.POLLNVAL) != 0 {
			return fmt.Errorf("poll: uevent socket revents %#x", fds[0].Revents)
		}
		// POLLERR is a pending socket error, ENOBUFS after an event burst
		// overflowed the receive buffer. The next Recv returns and clears it.
		if fds[0].Revents&(unix.POLLIN|unix.POLLERR) != 0 {
			return nil
		}
	}
}

// Recv reads one datagram without blocking. The returned length is the
// datagram's full size, which exceeds len(buf) if it was truncated.
func (s *NetlinkSource) Recv(buf []byte) (int, error) {
	n, _, err := unix.Recvfrom(s.fd, buf, unix.MSG_DONTWAIT|unix.MSG_TRUNC)
	return n, err
}

func (s *NetlinkSource) Interrupt() error {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	_, err := unix.Write(s.wake, one[:])
	if err == unix.EAGAIN {
		// Counter saturated; the wakeup is already pending.
		return nil
	}
	return err
}

func (s *NetlinkSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = unix.Close(s.fd)
		if werr := unix.Close(s.wake); err == nil {
			err = werr
		}
	})
	return err
}
