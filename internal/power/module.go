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

// Package power is the power HAL module: it tunes the interactive
// governor, applies power profiles and runs the CPU hot-plug listener.
package power

import (
	"context"
	"errors"
	"sync"

	"github.com/omnirom/powerhal/internal/config"
	"github.com/omnirom/powerhal/internal/hotplug"
	"github.com/omnirom/powerhal/internal/logging"
	"github.com/omnirom/powerhal/internal/profile"
	"github.com/omnirom/powerhal/internal/sysfs"
	"github.com/omnirom/powerhal/internal/topology"
	"github.com/sirupsen/logrus"
)

var ErrAlreadyInitialized = errors.New("power module already initialized")

// Options replace the module's kernel collaborators, mainly for tests.
type Options struct {
	// Writer receives all control-file writes. Defaults to the sysfs
	// tree at the configured root.
	Writer sysfs.Writer
	// OpenSource opens the hot-plug event channel. Defaults to the
	// kernel uevent socket.
	OpenSource func() (hotplug.Source, error)
}

// Status is a snapshot of the module state.
type Status struct {
	LowPower  bool
	Clamped   []int
	TotalCPUs int
	Bounds    topology.Bounds

	Listening     bool
	ListenerError string
}

type Module struct {
	cfg        *config.Config
	fs         *sysfs.FS
	w          sysfs.Writer
	ctrl       *hotplug.Controller
	openSource func() (hotplug.Source, error)
	log        *logrus.Entry

	mu          sync.Mutex
	initialized bool
	bounds      topology.Bounds
	applier     *profile.Applier
	cancel      context.CancelFunc
	done        chan struct{}
	listening   bool
	listenerErr error
}

func New(cfg *config.Config, opts Options) *Module {
	fs := sysfs.New(cfg.SysfsRoot)
	m := &Module{
		cfg:        cfg,
		fs:         fs,
		w:          opts.Writer,
		openSource: opts.OpenSource,
		log:        logging.Component("power"),
	}
	if m.w == nil {
		m.w = fs
	}
	if m.openSource == nil {
		m.openSource = func() (hotplug.Source, error) { return hotplug.OpenUevent() }
	}
	m.ctrl = hotplug.NewController(m.w, hotplug.ControllerConfig{
		TotalCPUs: cfg.TotalCPUs,
		Freqs: hotplug.Freqs{
			LowPowerMin: cfg.LowPower.MinFreq,
			LowPowerMax: cfg.LowPower.MaxFreq,
			NormalMax:   cfg.LowPower.NormalMaxFreq,
		},
		Retries:       cfg.Hotplug.Retries,
		RetryInterval: cfg.Hotplug.RetryInterval,
		LowPower:      cfg.LowPower.Enabled,
	})
	return m
}

// Init discovers the topology, writes the initial governor tuning and
// starts the hot-plug listener, which runs until ctx is cancelled or
// Close is called. Failing to open the event channel is logged and leaves
// the rest of the module working.
func (m *Module) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return ErrAlreadyInitialized
	}
	m.initialized = true

	bounds, err := topology.Discover(m.fs)
	if err != nil {
		m.log.WithError(err).Warn("Incomplete topology, \"max\" profile values may be wrong")
	}
	m.bounds = bounds
	m.applier = profile.NewApplier(m.w, bounds)

	m.writeTunables(m.cfg.Governor.Init)

	if m.cfg.Hotplug.Disabled {
		m.log.Info("Hot-plug listener disabled by configuration")
		return nil
	}
	src, err := m.openSource()
	if err != nil {
		m.log.WithError(err).Error("Failed to open uevent channel, hot-plug clamping is disabled")
		m.listenerErr = err
		return nil
	}

	lctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.listening = true
	go func() {
		err := hotplug.NewListener(src, m.ctrl).Run(lctx)
		m.mu.Lock()
		m.listening = false
		m.listenerErr = err
		m.mu.Unlock()
		close(m.done)
	}()
	return nil
}

// Close stops the hot-plug listener and waits for it to exit.
func (m *Module) Close() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// SetInteractive switches the governor tuning between the interactive and
// the idle tables.
func (m *Module) SetInteractive(on bool) {
	m.log.WithField("interactive", on).Debug("Interactive state changed")
	if on {
		m.writeTunables(m.cfg.Governor.Interactive)
	} else {
		m.writeTunables(m.cfg.Governor.NonInteractive)
	}
}

// PowerHint dispatches a hint. Only HintPowerProfile does anything; its
// payload is the profile as a string or []byte. Errors are logged, never
// returned.
func (m *Module) PowerHint(hint Hint, data interface{}) {
	log := m.log.WithField("hint", hint)
	switch hint {
	case HintPowerProfile:
		var s string
		switch d := data.(type) {
		case string:
			s = d
		case []byte:
			s = string(d)
		default:
			log.Warnf("Ignoring power profile payload of type %T", data)
			return
		}
		m.mu.Lock()
		applier := m.applier
		m.mu.Unlock()
		if applier == nil {
			log.Warn("Power profile received before init")
			return
		}
		log.WithField("profile", s).Debug("Power profile requested")
		_ = applier.Apply(s)

	case HintLowPower:
		// Power profiles carry low-power behaviour.
		log.Debug("Ignoring low-power hint")

	default:
		log.Trace("Ignoring power hint")
	}
}

// SetLowPower sets the flag that decides whether hot-plugged CPUs are
// clamped to the low-power band.
func (m *Module) SetLowPower(on bool) {
	m.ctrl.SetLowPower(on)
}

func (m *Module) Status() Status {
	st := Status{
		LowPower:  m.ctrl.LowPower(),
		Clamped:   m.ctrl.Clamped(),
		TotalCPUs: m.ctrl.TotalCPUs(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st.Bounds = m.bounds
	st.Listening = m.listening
	if m.listenerErr != nil {
		st.ListenerError = m.listenerErr.Error()
	}
	return st
}

func (m *Module) writeTunables(tunables []config.Tunable) {
	for _, t := range tunables {
		_ = m.w.Write(t.Path, t.Value)
	}
}
