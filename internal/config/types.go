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

package config

import "time"

// Config is the daemon configuration. Zero-valued fields in a config file
// keep the defaults from Default.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// Socket is the control socket path. A leading '@' selects the Linux
	// abstract namespace.
	Socket     string `yaml:"socket"`
	SocketMode uint32 `yaml:"socket_mode"`

	// SysfsRoot prefixes every control path. "/" on a device.
	SysfsRoot string `yaml:"sysfs_root"`

	// TotalCPUs bounds the CPU indices accepted from hot-plug events.
	TotalCPUs int `yaml:"total_cpus"`

	LowPower LowPowerConfig `yaml:"low_power"`
	Hotplug  HotplugConfig  `yaml:"hotplug"`
	Governor GovernorConfig `yaml:"governor"`
}

type LowPowerConfig struct {
	// Enabled is the initial state of the low-power flag.
	Enabled       bool   `yaml:"enabled"`
	MinFreq       string `yaml:"min_freq"`
	MaxFreq       string `yaml:"max_freq"`
	NormalMaxFreq string `yaml:"normal_max_freq"`
}

type HotplugConfig struct {
	// Disabled skips opening the uevent socket.
	Disabled      bool          `yaml:"disabled"`
	Retries       int           `yaml:"retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// Tunable is a single governor knob written verbatim.
type Tunable struct {
	Path  string `yaml:"path"`
	Value string `yaml:"value"`
}

type GovernorConfig struct {
	Init           []Tunable `yaml:"init"`
	Interactive    []Tunable `yaml:"interactive"`
	NonInteractive []Tunable `yaml:"non_interactive"`
}
