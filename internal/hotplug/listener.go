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

	"github.com/omnirom/powerhal/internal/logging"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by Source.Wait once Interrupt has been called.
var ErrClosed = errors.New("uevent source interrupted")

// Source is a kernel event channel.
type Source interface {
	// Wait blocks until a message can be received. It returns ErrClosed
	// after Interrupt and any other error on an unrecoverable failure.
	Wait() error
	// Recv reads one pending message. n may exceed len(buf) when the
	// message did not fit.
	Recv(buf []byte) (n int, err error)
	// Interrupt wakes a blocked Wait. It is safe to call from any
	// goroutine.
	Interrupt() error
	Close() error
}

// Listener feeds CPU online events from a Source into a Controller.
type Listener struct {
	src  Source
	ctrl *Controller
	buf  []byte
	log  *logrus.Entry
}

// NewListener returns a Listener that owns src; Run closes it.
func NewListener(src Source, ctrl *Controller) *Listener {
	return &Listener{
		src:  src,
		ctrl: ctrl,
		// One spare byte so a datagram of MaxMessageLen+1 is seen as too
		// long even by sources that do not report truncation.
		buf: make([]byte, MaxMessageLen+1),
		log: logging.Component("uevent"),
	}
}

// Run processes events until ctx is cancelled, in which case it returns
// nil, or until waiting on the source fails.
func (l *Listener) Run(ctx context.Context) error {
	done := make(chan struct{})
	stopped := make(chan struct{})
	// The source is closed only once nothing can call Interrupt on it.
	defer func() {
		close(done)
		<-stopped
		l.src.Close()
	}()
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			if err := l.src.Interrupt(); err != nil {
				l.log.WithError(err).Error("Failed to interrupt uevent wait")
			}
		case <-done:
		}
	}()

	l.log.Info("Listening for CPU hot-plug events")
	for {
		if err := l.src.Wait(); err != nil {
			if errors.Is(err, ErrClosed) {
				l.log.Info("Hot-plug listener stopped")
				return nil
			}
			l.log.WithError(err).Error("Waiting for uevents failed, hot-plug clamping is disabled")
			return err
		}
		l.handle()
	}
}

func (l *Listener) handle() {
	n, err := l.src.Recv(l.buf)
	if err != nil {
		// ENOBUFS means events were dropped by the kernel; later ones
		// still arrive.
		l.log.WithError(err).Debug("Discarding failed uevent read")
		return
	}
	if n <= 0 {
		l.log.Trace("Discarding empty uevent read")
		return
	}
	if n > MaxMessageLen {
		l.log.WithField("len", n).Debug("Discarding oversized uevent")
		return
	}

	cpu, ok := ParseOnline(l.buf[:n])
	if !ok {
		return
	}
	if cpu >= l.ctrl.TotalCPUs() {
		l.log.WithField("cpu", cpu).Debug("Ignoring online event for CPU outside the managed range")
		return
	}
	// Exhausted retries are logged by the controller and left for the
	// next event.
	_ = l.ctrl.HandleOnline(cpu)
}
