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

// Package hotplug keeps newly onlined CPUs inside the low-power frequency
// band while low-power mode is on.
package hotplug

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/omnirom/powerhal/internal/cpuset"
	"github.com/omnirom/powerhal/internal/logging"
	"github.com/omnirom/powerhal/internal/sysfs"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

var (
	ErrCPUOutOfRange    = errors.New("cpu index out of range")
	ErrRetriesExhausted = errors.New("frequency write retries exhausted")
)

// Freqs is the low-power band and the frequency restored outside of it.
type Freqs struct {
	LowPowerMin string
	LowPowerMax string
	NormalMax   string
}

type ControllerConfig struct {
	TotalCPUs     int
	Freqs         Freqs
	Retries       int
	RetryInterval time.Duration
	LowPower      bool
}

// Controller owns the low-power flag and the set of CPUs whose maximum
// frequency it has clamped. Both are guarded by mu, which is held for the
// whole retry loop of a clamp or restore.
type Controller struct {
	w     sysfs.Writer
	total int
	freqs Freqs

	retries  int
	interval time.Duration
	sleep    func(time.Duration)

	log *logrus.Entry

	mu       sync.Mutex
	lowPower bool
	// A CPU in clamped has LowPowerMax in its scaling_max_freq, unless
	// something else wrote that file since.
	clamped unix.CPUSet
}

func NewController(w sysfs.Writer, cfg ControllerConfig) *Controller {
	retries := cfg.Retries
	if retries <= 0 {
		retries = 1
	}
	return &Controller{
		w:        w,
		total:    cfg.TotalCPUs,
		freqs:    cfg.Freqs,
		retries:  retries,
		interval: cfg.RetryInterval,
		sleep:    time.Sleep,
		log:      logging.Component("hotplug"),
		lowPower: cfg.LowPower,
	}
}

// TotalCPUs is the number of CPU indices the controller accepts.
func (c *Controller) TotalCPUs() int {
	return c.total
}

func (c *Controller) SetLowPower(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lowPower != on {
		c.log.WithField("low_power", on).Info("Low-power mode changed")
	}
	c.lowPower = on
}

func (c *Controller) LowPower() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lowPower
}

func (c *Controller) IsClamped(cpu int) bool {
	if !c.valid(cpu) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clamped.IsSet(cpu)
}

// Clamped returns the clamped CPUs in ascending order.
func (c *Controller) Clamped() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cpuset.List(c.clamped)
}

func (c *Controller) valid(cpu int) bool {
	return cpu >= 0 && cpu < c.total
}

// HandleOnline brings a CPU that just came online in line with the
// low-power flag. An out-of-range index is rejected before any locking.
func (c *Controller) HandleOnline(cpu int) error {
	if !c.valid(cpu) {
		return fmt.Errorf("cpu %d: %w", cpu, ErrCPUOutOfRange)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.log.WithField("cpu", cpu)
	switch {
	case c.lowPower && !c.clamped.IsSet(cpu):
		err := c.retry(func() error {
			_ = c.w.Write(sysfs.CPUFreqPath(cpu, sysfs.ScalingMinFreq), c.freqs.LowPowerMin)
			return c.w.WriteSilent(sysfs.CPUFreqPath(cpu, sysfs.ScalingMaxFreq), c.freqs.LowPowerMax)
		})
		if err != nil {
			log.WithError(err).Warn("Could not clamp onlined CPU to the low-power band")
			return err
		}
		c.clamped.Set(cpu)
		log.Debug("Clamped onlined CPU")

	case !c.lowPower && c.clamped.IsSet(cpu):
		err := c.retry(func() error {
			return c.w.WriteSilent(sysfs.CPUFreqPath(cpu, sysfs.ScalingMaxFreq), c.freqs.NormalMax)
		})
		if err != nil {
			log.WithError(err).Warn("Could not restore normal maximum frequency of onlined CPU")
			return err
		}
		c.clamped.Clear(cpu)
		log.Debug("Restored onlined CPU")
	}
	return nil
}

// retry runs fn until it succeeds, sleeping between attempts. c.mu must
// be held.
func (c *Controller) retry(fn func() error) error {
	var err error
	for attempt := 0; attempt < c.retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		c.sleep(c.interval)
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, c.retries, err)
}
