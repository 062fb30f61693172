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

// Command powerhald is a CPU power HAL daemon and its control client.
//
// The daemon tunes the interactive cpufreq governor, applies power
// profiles such as "maxCpu:2:maxFreq:640000" and keeps hot-plugged CPUs
// in the low-power frequency band while low-power mode is on. The other
// subcommands talk to a running daemon over its control socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/omnirom/powerhal/internal/config"
	"github.com/omnirom/powerhal/internal/cpuset"
	"github.com/omnirom/powerhal/internal/logging"
	"github.com/omnirom/powerhal/internal/power"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func loadEnvironment() {
	logger := logging.GetLogger()

	envFiles := []string{".env"}
	if execPath, err := os.Executable(); err == nil {
		envFiles = append(envFiles, filepath.Join(filepath.Dir(execPath), ".env"))
	}
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
		} else {
			logger.WithField("file", envFile).Debug("Loaded environment variables")
		}
		return
	}
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func main() {
	logger := logging.GetLogger()

	loadEnvironment()

	var configFile, socketPath, logLevel string
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "powerhald",
		Short:         "CPU power HAL daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if logLevel == "" {
				logLevel = cfg.LogLevel
			}
			if err := logging.SetLogLevel(logLevel); err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			if socketPath != "" {
				cfg.Socket = socketPath
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", os.Getenv("POWERHAL_CONFIG"), "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Control socket path (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (trace, debug, info, warn, error)")

	withClient := func(fn func(*Client) error) error {
		c, err := NewClient(cfg.Socket)
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(c)
	}

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the power HAL daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return doDaemon(ctx, cfg)
		},
	}

	profileCmd := &cobra.Command{
		Use:     "profile PROFILE",
		Short:   "Apply a power profile, e.g. maxCpu:2:maxFreq:max",
		Args:    cobra.ExactArgs(1),
		Example: "  powerhald profile maxCpu:max:maxFreq:640000",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *Client) error {
				return c.PowerHint(power.HintPowerProfile, args[0])
			})
		},
	}

	hintCmd := &cobra.Command{
		Use:   "hint HINT [DATA]",
		Short: "Send a raw power hint by name or code",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hint, err := power.ParseHint(args[0])
			if err != nil {
				return err
			}
			var data string
			if len(args) == 2 {
				data = args[1]
			}
			return withClient(func(c *Client) error {
				return c.PowerHint(hint, data)
			})
		},
	}

	interactiveCmd := &cobra.Command{
		Use:   "interactive on|off",
		Short: "Switch the governor between interactive and idle tuning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			return withClient(func(c *Client) error {
				return c.SetInteractive(on)
			})
		},
	}

	lowPowerCmd := &cobra.Command{
		Use:   "low-power on|off",
		Short: "Set whether onlined CPUs are clamped to the low-power band",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			return withClient(func(c *Client) error {
				return c.SetLowPower(on)
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *Client) error {
				st, err := c.Status()
				if err != nil {
					return err
				}
				printStatus(cmd, st)
				return nil
			})
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.WithField("config_file", configFile).Info("Configuration is valid")
			return nil
		},
	}

	rootCmd.AddCommand(daemonCmd, profileCmd, hintCmd, interactiveCmd, lowPowerCmd, statusCmd, validateCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Fatal("Command execution failed")
	}
}

func printStatus(cmd *cobra.Command, st *power.Status) {
	var clamped unix.CPUSet
	for _, cpu := range st.Clamped {
		clamped.Set(cpu)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "low power:\t%t\n", st.LowPower)
	fmt.Fprintf(out, "clamped cpus:\t%s\n", cpuset.String(clamped))
	fmt.Fprintf(out, "managed cpus:\t%d\n", st.TotalCPUs)
	fmt.Fprintf(out, "max cpus:\t%d\n", st.Bounds.MaxCPUs)
	fmt.Fprintf(out, "max freq:\t%d\n", st.Bounds.MaxFreq)
	listener := "running"
	if !st.Listening {
		listener = "stopped"
		if st.ListenerError != "" {
			listener += " (" + st.ListenerError + ")"
		}
	}
	fmt.Fprintf(out, "hotplug:\t%s\n", listener)
}
