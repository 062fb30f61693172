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

package hotplug

import (
	"context"
	"errors"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/omnirom/powerhal/internal/sysfs"
	"gotest.tools/v3/assert"
)

// fakeSource hands out queued messages before it honours an interrupt,
// and reports the full length of messages that do not fit like
// MSG_TRUNC does.
type fakeSource struct {
	mu      sync.Mutex
	queue   []fakeMsg
	cur     fakeMsg
	waitErr error
	closed  bool

	// interruptAfterClose is set if Interrupt ran on a closed source.
	interruptAfterClose bool

	interrupted chan struct{}
	once        sync.Once
}

type fakeMsg struct {
	data []byte
	err  error
}

func newFakeSource(msgs ...string) *fakeSource {
	f := &fakeSource{interrupted: make(chan struct{})}
	for _, m := range msgs {
		f.queue = append(f.queue, fakeMsg{data: []byte(m)})
	}
	return f
}

// failRecv queues a readiness whose Recv fails with err.
func (f *fakeSource) failRecv(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeMsg{err: err})
}

func (f *fakeSource) push(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeMsg{data: []byte(msg)})
}

func (f *fakeSource) Wait() error {
	f.mu.Lock()
	if len(f.queue) > 0 {
		f.cur, f.queue = f.queue[0], f.queue[1:]
		f.mu.Unlock()
		return nil
	}
	err := f.waitErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	<-f.interrupted
	return ErrClosed
}

func (f *fakeSource) Recv(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cur.err != nil {
		return -1, f.cur.err
	}
	copy(buf, f.cur.data)
	return len(f.cur.data), nil
}

func (f *fakeSource) Interrupt() error {
	f.mu.Lock()
	if f.closed {
		f.interruptAfterClose = true
	}
	f.mu.Unlock()
	f.once.Do(func() { close(f.interrupted) })
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func online(cpu string) string {
	return "online@/devices/system/cpu/cpu" + cpu + "\x00ACTION=online\x00DEVPATH=/devices/system/cpu/cpu" + cpu + "\x00SUBSYSTEM=cpu\x00"
}

// padded returns an online event for cpu1 that is exactly n bytes long.
func padded(n int) string {
	msg := online("1")
	return msg + strings.Repeat("X", n-len(msg))
}

// drain runs a listener over msgs until the queue is empty.
func drain(t *testing.T, c *Controller, msgs ...string) *fakeSource {
	t.Helper()
	src := newFakeSource(msgs...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NilError(t, NewListener(src, c).Run(ctx))
	assert.Check(t, src.isClosed())
	return src
}

func TestListenerClampsOnlinedCPU(t *testing.T) {
	w := &fakeWriter{}
	c, _ := newTestController(w, true)

	drain(t, c, online("2"), online("2"))
	assert.DeepEqual(t, w.calls(), clampWrites(2))
	assert.Check(t, c.IsClamped(2))
}

func TestListenerRestoresOnlinedCPU(t *testing.T) {
	w := &fakeWriter{}
	c, _ := newTestController(w, true)
	assert.NilError(t, c.HandleOnline(1))
	c.SetLowPower(false)
	w.reset()

	drain(t, c, online("1"))
	assert.DeepEqual(t, w.calls(), []write{
		{sysfs.CPUFreqPath(1, sysfs.ScalingMaxFreq), "1300000", true},
	})
	assert.Check(t, !c.IsClamped(1))
}

func TestListenerIgnoresIrrelevantMessages(t *testing.T) {
	w := &fakeWriter{}
	c, _ := newTestController(w, true)

	drain(t, c,
		"",
		"add@/devices/system/cpu/cpu1\x00ACTION=add\x00",
		"offline@/devices/system/cpu/cpu1\x00ACTION=offline\x00",
		"online@/devices/system/cpu/cpu7",
		"online@/devices/system/cpu/cpufreq",
		"change@/devices/platform\x00online@/devices/system/cpu/cpu1",
	)
	assert.Equal(t, len(w.calls()), 0)
	assert.DeepEqual(t, c.Clamped(), []int{})
}

func TestListenerMessageLengthBoundary(t *testing.T) {
	w := &fakeWriter{}
	c, _ := newTestController(w, true)

	drain(t, c, padded(MaxMessageLen+1))
	assert.Equal(t, len(w.calls()), 0)

	drain(t, c, padded(MaxMessageLen+100))
	assert.Equal(t, len(w.calls()), 0)

	drain(t, c, padded(MaxMessageLen))
	assert.DeepEqual(t, w.calls(), clampWrites(1))
}

func TestListenerStopsOnFatalWaitError(t *testing.T) {
	c, _ := newTestController(&fakeWriter{}, true)
	src := newFakeSource()
	src.waitErr = errors.New("poll: bad file descriptor")

	err := NewListener(src, c).Run(context.Background())
	assert.ErrorContains(t, err, "bad file descriptor")
	assert.Check(t, src.isClosed())
}

func TestListenerContinuesAfterFailedRead(t *testing.T) {
	w := &fakeWriter{}
	c, _ := newTestController(w, true)
	src := newFakeSource()
	src.failRecv(syscall.ENOBUFS)
	src.failRecv(syscall.EAGAIN)
	src.push(online("2"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NilError(t, NewListener(src, c).Run(ctx))
	assert.DeepEqual(t, w.calls(), clampWrites(2))
}

// cancellingSource cancels the listener's context from Wait and then
// fails, so the interrupt and the fatal error race.
type cancellingSource struct {
	*fakeSource
	cancel context.CancelFunc
}

func (s *cancellingSource) Wait() error {
	s.cancel()
	return errors.New("poll: bad file descriptor")
}

func TestListenerClosesSourceAfterInterrupt(t *testing.T) {
	c, _ := newTestController(&fakeWriter{}, true)
	for i := 0; i < 100; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		src := &cancellingSource{fakeSource: newFakeSource(), cancel: cancel}

		err := NewListener(src, c).Run(ctx)
		assert.ErrorContains(t, err, "bad file descriptor")
		src.mu.Lock()
		assert.Check(t, src.closed)
		assert.Check(t, !src.interruptAfterClose)
		src.mu.Unlock()
	}
}

func TestListenerStopsOnCancel(t *testing.T) {
	c, _ := newTestController(&fakeWriter{}, true)
	src := newFakeSource()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- NewListener(src, c).Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		assert.NilError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}

func TestParseOnline(t *testing.T) {
	tests := []struct {
		msg string
		cpu int
		ok  bool
	}{
		{"online@/devices/system/cpu/cpu0", 0, true},
		{"online@/devices/system/cpu/cpu3\x00ACTION=online\x00SEQNUM=1234", 3, true},
		{"online@/devices/system/cpu/cpu9", 9, true},
		// Only the trailing character is the index.
		{"online@/devices/system/cpu/cpu12", 2, true},
		{"online@/devices/system/cpu/cpu", 0, false},
		{"offline@/devices/system/cpu/cpu1", 0, false},
		{"online@/devices/virtual/net/lo", 0, false},
		{"\x00online@/devices/system/cpu/cpu1", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		cpu, ok := ParseOnline([]byte(tt.msg))
		assert.Equal(t, ok, tt.ok, "%q", tt.msg)
		if ok {
			assert.Equal(t, cpu, tt.cpu, "%q", tt.msg)
		}
	}
}
