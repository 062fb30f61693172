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

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/omnirom/powerhal/internal/cpuset"
	"github.com/omnirom/powerhal/internal/logging"
	"gopkg.in/yaml.v3"
)

const interactiveDir = "/sys/devices/system/cpu/cpufreq/interactive/"

// Default returns the configuration of the reference device: four CPUs,
// a 51-640 MHz low-power band and the interactive governor.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		Socket:     "@powerhal",
		SocketMode: 0o660,
		SysfsRoot:  "/",
		TotalCPUs:  4,
		LowPower: LowPowerConfig{
			MinFreq:       "51000",
			MaxFreq:       "640000",
			NormalMaxFreq: "1300000",
		},
		Hotplug: HotplugConfig{
			Retries:       20,
			RetryInterval: 200 * time.Microsecond,
		},
		Governor: GovernorConfig{
			// timer 50ms, min sample 500ms, hispeed at load 75%
			Init: []Tunable{
				{interactiveDir + "timer_rate", "50000"},
				{interactiveDir + "min_sample_time", "500000"},
				{interactiveDir + "go_hispeed_load", "75"},
				{interactiveDir + "boost_factor", "0"},
				{interactiveDir + "input_boost", "1"},
			},
			Interactive: []Tunable{
				{interactiveDir + "go_hispeed_load", "75"},
				{interactiveDir + "core_lock_period", "3000000"},
				{interactiveDir + "core_lock_count", "2"},
				{interactiveDir + "input_boost", "1"},
			},
			NonInteractive: []Tunable{
				{interactiveDir + "go_hispeed_load", "85"},
				{interactiveDir + "core_lock_period", "200000"},
				{interactiveDir + "core_lock_count", "0"},
				{interactiveDir + "input_boost", "0"},
			},
		},
	}
}

// LoadConfig reads a YAML config on top of Default. An empty path returns
// the defaults.
func LoadConfig(filepath string) (*Config, error) {
	logger := logging.GetLogger()

	config := Default()
	if filepath == "" {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, err
	}

	if err := Parse(data, config); err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse config file")
		return nil, err
	}
	return config, nil
}

// Parse expands ${VAR} references in data, decodes it into config and
// validates the result.
func Parse(data []byte, config *Config) error {
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return err
	}
	if err := Validate(config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(content string) string {
	return envVarRe.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

func Validate(config *Config) error {
	if config.TotalCPUs <= 0 {
		return fmt.Errorf("total_cpus must be positive, got %d", config.TotalCPUs)
	}
	if config.TotalCPUs > cpuset.MaxCPUs {
		return fmt.Errorf("total_cpus %d exceeds the supported maximum of %d", config.TotalCPUs, cpuset.MaxCPUs)
	}
	if config.Hotplug.Retries <= 0 {
		return fmt.Errorf("hotplug.retries must be positive, got %d", config.Hotplug.Retries)
	}
	if config.Hotplug.RetryInterval < 0 {
		return fmt.Errorf("hotplug.retry_interval must not be negative")
	}
	for name, v := range map[string]string{
		"low_power.min_freq":        config.LowPower.MinFreq,
		"low_power.max_freq":        config.LowPower.MaxFreq,
		"low_power.normal_max_freq": config.LowPower.NormalMaxFreq,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	if config.Socket == "" {
		return fmt.Errorf("socket must not be empty")
	}
	for _, tables := range [][]Tunable{config.Governor.Init, config.Governor.Interactive, config.Governor.NonInteractive} {
		for _, t := range tables {
			if t.Path == "" {
				return fmt.Errorf("governor tunable with value %q has no path", t.Value)
			}
		}
	}
	return nil
}
