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

// Package topology discovers the device's CPU count and top frequency.
package topology

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/omnirom/powerhal/internal/cpuset"
	"github.com/omnirom/powerhal/internal/logging"
	"github.com/omnirom/powerhal/internal/sysfs"
	procsysfs "github.com/prometheus/procfs/sysfs"
	"github.com/sirupsen/logrus"
)

const cpuinfoMaxFreq = "cpuinfo_max_freq"

// Bounds are read once at initialization and are read-only afterwards.
type Bounds struct {
	// MaxFreq is the highest cpuinfo_max_freq of any CPU, in kHz.
	MaxFreq int
	// MaxCPUs is one past the highest present CPU index.
	MaxCPUs int
}

// Discover reads the bounds below fs.Root. A bound that cannot be read is
// left at zero and reported in the returned error; the other one is still
// filled in.
func Discover(fs *sysfs.FS) (Bounds, error) {
	logger := logging.Component("topology")

	var b Bounds
	var errs []error

	freq, err := maxFreq(fs)
	if err != nil {
		errs = append(errs, fmt.Errorf("max frequency: %w", err))
	} else {
		b.MaxFreq = freq
	}

	cpus, err := maxCPUs(fs)
	if err != nil {
		errs = append(errs, fmt.Errorf("max cpus: %w", err))
	} else {
		b.MaxCPUs = cpus
	}

	logger.WithFields(logrus.Fields{
		"max_freq": b.MaxFreq,
		"max_cpus": b.MaxCPUs,
	}).Info("Topology discovered")
	return b, errors.Join(errs...)
}

func maxFreq(fs *sysfs.FS) (int, error) {
	pfs, err := procsysfs.NewFS(fs.Path("/sys"))
	if err == nil {
		stats, err := pfs.SystemCpufreq()
		if err == nil {
			var highest uint64
			for _, s := range stats {
				if s.CpuinfoMaximumFrequency != nil && *s.CpuinfoMaximumFrequency > highest {
					highest = *s.CpuinfoMaximumFrequency
				}
			}
			if highest > 0 {
				return int(highest), nil
			}
		}
		logging.Component("topology").WithError(err).Debug("procfs cpufreq scan incomplete, reading cpu0 directly")
	}

	s, err := fs.ReadString(sysfs.CPUFreqPath(0, cpuinfoMaxFreq))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

func maxCPUs(fs *sysfs.FS) (int, error) {
	s, err := fs.ReadString(sysfs.PresentPath)
	if err != nil {
		return 0, err
	}
	set, err := cpuset.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", filepath.Base(sysfs.PresentPath), err)
	}
	return cpuset.Highest(set) + 1, nil
}
