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
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/omnirom/powerhal/internal/sysfs"
	"gotest.tools/v3/assert"
)

type write struct {
	Path, Value string
	Silent      bool
}

// fakeWriter records writes. The first failMax writes to a
// scaling_max_freq file fail.
type fakeWriter struct {
	mu      sync.Mutex
	writes  []write
	failMax int
}

func (f *fakeWriter) record(path, value string, silent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, write{path, value, silent})
	if strings.HasSuffix(path, sysfs.ScalingMaxFreq) && f.failMax > 0 {
		f.failMax--
		return fmt.Errorf("write %s: device or resource busy", path)
	}
	return nil
}

func (f *fakeWriter) Write(path, value string) error {
	return f.record(path, value, false)
}

func (f *fakeWriter) WriteSilent(path, value string) error {
	return f.record(path, value, true)
}

func (f *fakeWriter) calls() []write {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]write, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeWriter) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
}

var testFreqs = Freqs{LowPowerMin: "51000", LowPowerMax: "640000", NormalMax: "1300000"}

func newTestController(w sysfs.Writer, lowPower bool) (*Controller, *int) {
	c := NewController(w, ControllerConfig{
		TotalCPUs:     4,
		Freqs:         testFreqs,
		Retries:       20,
		RetryInterval: 200 * time.Microsecond,
		LowPower:      lowPower,
	})
	sleeps := new(int)
	c.sleep = func(d time.Duration) {
		if d != 200*time.Microsecond {
			panic(fmt.Sprintf("unexpected backoff %v", d))
		}
		*sleeps++
	}
	return c, sleeps
}

func clampWrites(cpu int) []write {
	return []write{
		{sysfs.CPUFreqPath(cpu, sysfs.ScalingMinFreq), "51000", false},
		{sysfs.CPUFreqPath(cpu, sysfs.ScalingMaxFreq), "640000", true},
	}
}

func TestClampOnlinedCPU(t *testing.T) {
	w := &fakeWriter{}
	c, sleeps := newTestController(w, true)

	assert.NilError(t, c.HandleOnline(2))
	assert.DeepEqual(t, w.calls(), clampWrites(2))
	assert.Check(t, c.IsClamped(2))
	assert.DeepEqual(t, c.Clamped(), []int{2})
	assert.Equal(t, *sleeps, 0)

	// Already clamped: nothing to do.
	w.reset()
	assert.NilError(t, c.HandleOnline(2))
	assert.Equal(t, len(w.calls()), 0)
}

func TestClampRetriesUntilWriteSucceeds(t *testing.T) {
	w := &fakeWriter{failMax: 3}
	c, sleeps := newTestController(w, true)

	assert.NilError(t, c.HandleOnline(1))
	var want []write
	for i := 0; i < 4; i++ {
		want = append(want, clampWrites(1)...)
	}
	assert.DeepEqual(t, w.calls(), want)
	assert.Equal(t, *sleeps, 3)
	assert.Check(t, c.IsClamped(1))
}

func TestClampRetriesExhausted(t *testing.T) {
	w := &fakeWriter{failMax: 1000}
	c, sleeps := newTestController(w, true)

	err := c.HandleOnline(3)
	assert.Check(t, errors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, len(w.calls()), 40)
	assert.Equal(t, *sleeps, 20)
	assert.Check(t, !c.IsClamped(3))

	// State is left as it was, so a later event tries again.
	w.mu.Lock()
	w.failMax = 0
	w.mu.Unlock()
	w.reset()
	assert.NilError(t, c.HandleOnline(3))
	assert.DeepEqual(t, w.calls(), clampWrites(3))
	assert.Check(t, c.IsClamped(3))
}

func TestRestoreWhenLowPowerOff(t *testing.T) {
	w := &fakeWriter{}
	c, _ := newTestController(w, true)
	assert.NilError(t, c.HandleOnline(1))

	c.SetLowPower(false)
	w.reset()
	assert.NilError(t, c.HandleOnline(1))
	assert.DeepEqual(t, w.calls(), []write{
		{sysfs.CPUFreqPath(1, sysfs.ScalingMaxFreq), "1300000", true},
	})
	assert.Check(t, !c.IsClamped(1))

	// Neither low power nor clamped: no writes.
	w.reset()
	assert.NilError(t, c.HandleOnline(1))
	assert.Equal(t, len(w.calls()), 0)
}

func TestRestoreRetriesExhausted(t *testing.T) {
	w := &fakeWriter{}
	c, sleeps := newTestController(w, true)
	assert.NilError(t, c.HandleOnline(0))
	c.SetLowPower(false)

	w.mu.Lock()
	w.failMax = 1000
	w.mu.Unlock()
	err := c.HandleOnline(0)
	assert.Check(t, errors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, *sleeps, 20)
	assert.Check(t, c.IsClamped(0))
}

func TestOutOfRangeCPUTakesNoLock(t *testing.T) {
	w := &fakeWriter{}
	c, _ := newTestController(w, true)

	// Holding the lock would deadlock HandleOnline if it tried to take it.
	c.mu.Lock()
	for _, cpu := range []int{-1, 4, 7} {
		err := c.HandleOnline(cpu)
		assert.Check(t, errors.Is(err, ErrCPUOutOfRange), cpu)
	}
	c.mu.Unlock()
	assert.Equal(t, len(w.calls()), 0)
	assert.Check(t, !c.IsClamped(7))
}

func TestLowPowerFlag(t *testing.T) {
	c, _ := newTestController(&fakeWriter{}, false)
	assert.Check(t, !c.LowPower())
	c.SetLowPower(true)
	assert.Check(t, c.LowPower())
}

func TestConcurrentEventsAndFlagChanges(t *testing.T) {
	w := &fakeWriter{}
	c, _ := newTestController(w, true)
	c.sleep = func(time.Duration) {}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.HandleOnline((i + j) % 4)
				if j%10 == 0 {
					c.SetLowPower(j%20 == 0)
				}
			}
		}(i)
	}
	wg.Wait()

	// Bring every CPU in line with the final flag.
	c.SetLowPower(true)
	for cpu := 0; cpu < 4; cpu++ {
		assert.NilError(t, c.HandleOnline(cpu))
	}
	assert.DeepEqual(t, c.Clamped(), []int{0, 1, 2, 3})
}
