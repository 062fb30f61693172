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

// Package sysfs writes and reads kernel control files.
package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/omnirom/powerhal/internal/logging"
	"github.com/sirupsen/logrus"
)

const (
	CPURoot     = "/sys/devices/system/cpu"
	PresentPath = CPURoot + "/present"

	ScalingMinFreq = "scaling_min_freq"
	ScalingMaxFreq = "scaling_max_freq"
)

// CPUFreqPath returns the cpufreq control file for one CPU.
func CPUFreqPath(cpu int, file string) string {
	return fmt.Sprintf("%s/cpu%d/cpufreq/%s", CPURoot, cpu, file)
}

// Writer replaces the content of control files. Writes are best effort;
// the returned error is informational.
type Writer interface {
	Write(path, value string) error
	// WriteSilent is Write without failure logging, for callers that
	// retry.
	WriteSilent(path, value string) error
}

// FS accesses control files below Root.
type FS struct {
	Root string
	log  *logrus.Entry
}

func New(root string) *FS {
	if root == "" {
		root = "/"
	}
	return &FS{Root: root, log: logging.Component("sysfs")}
}

// Path maps an absolute control path into the FS root.
func (fs *FS) Path(path string) string {
	return filepath.Join(fs.Root, path)
}

func (fs *FS) Write(path, value string) error {
	err := fs.write(path, value)
	if err != nil {
		fs.log.WithFields(logrus.Fields{"path": path, "value": value}).WithError(err).Error("Error writing to control file")
	}
	return err
}

func (fs *FS) WriteSilent(path, value string) error {
	return fs.write(path, value)
}

func (fs *FS) write(path, value string) error {
	f, err := os.OpenFile(fs.Path(path), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	_, err = f.WriteString(value)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadString returns the trimmed content of a control file.
func (fs *FS) ReadString(path string) (string, error) {
	b, err := os.ReadFile(fs.Path(path))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
