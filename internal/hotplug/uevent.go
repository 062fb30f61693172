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

import "bytes"

const (
	// MaxMessageLen is the largest uevent datagram that is processed.
	// Longer ones are dropped whole.
	MaxMessageLen = 2047

	onlineMarker = "online@/devices/system/cpu/"
)

// ParseOnline extracts the CPU index from a CPU online uevent such as
// "online@/devices/system/cpu/cpu2". Only the header record, up to the
// first NUL, is looked at; the index is its last character.
func ParseOnline(msg []byte) (cpu int, ok bool) {
	if i := bytes.IndexByte(msg, 0); i >= 0 {
		msg = msg[:i]
	}
	if !bytes.Contains(msg, []byte(onlineMarker)) {
		return 0, false
	}
	last := msg[len(msg)-1]
	if last < '0' || last > '9' {
		return 0, false
	}
	return int(last - '0'), true
}
