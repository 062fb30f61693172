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

package profile

import (
	"strconv"

	"github.com/omnirom/powerhal/internal/logging"
	"github.com/omnirom/powerhal/internal/sysfs"
	"github.com/omnirom/powerhal/internal/topology"
	"github.com/sirupsen/logrus"
)

// Applier writes profiles to the kernel. It keeps no state between calls
// and may be used concurrently.
//
// Frequency writes race with the hot-plug clamp on scaling_max_freq; the
// last writer wins.
type Applier struct {
	w      sysfs.Writer
	bounds topology.Bounds
	log    *logrus.Entry
}

func NewApplier(w sysfs.Writer, bounds topology.Bounds) *Applier {
	return &Applier{w: w, bounds: bounds, log: logging.Component("profile")}
}

// Apply parses s and writes its directives. A malformed profile causes no
// writes. Write failures are ignored.
func (a *Applier) Apply(s string) error {
	d, err := Parse(s)
	if err != nil {
		a.log.WithField("profile", s).WithError(err).Warn("Ignoring malformed power profile")
		return err
	}
	a.log.WithFields(logrus.Fields{
		"max_freq": d.MaxFreq,
		"max_cpu":  d.MaxCPU,
	}).Debug("Applying power profile")

	if d.MaxFreq != "" {
		freq := a.resolve(d.MaxFreq, a.bounds.MaxFreq)
		for cpu := 0; cpu < a.bounds.MaxCPUs; cpu++ {
			_ = a.w.Write(sysfs.CPUFreqPath(cpu, sysfs.ScalingMaxFreq), freq)
		}
	}
	if d.MaxCPU != "" {
		_ = a.w.Write(sysfs.PresentPath, a.resolve(d.MaxCPU, a.bounds.MaxCPUs))
	}
	return nil
}

func (a *Applier) resolve(v string, bound int) string {
	if v == Max {
		return strconv.Itoa(bound)
	}
	return v
}
