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

package power

import (
	"fmt"
	"strconv"
	"strings"
)

// Hint is a power hint code as sent by the Android power service.
type Hint int

const (
	HintVsync        Hint = 0x1
	HintInteraction  Hint = 0x2
	HintVideoEncode  Hint = 0x3
	HintVideoDecode  Hint = 0x4
	HintLowPower     Hint = 0x5
	HintPowerProfile Hint = 0x111
)

var hintNames = map[Hint]string{
	HintVsync:        "vsync",
	HintInteraction:  "interaction",
	HintVideoEncode:  "video_encode",
	HintVideoDecode:  "video_decode",
	HintLowPower:     "low_power",
	HintPowerProfile: "power_profile",
}

func (h Hint) String() string {
	if name, ok := hintNames[h]; ok {
		return name
	}
	return fmt.Sprintf("hint(%#x)", int(h))
}

// ParseHint accepts a hint name or a numeric code such as "0x111".
func ParseHint(s string) (Hint, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for h, name := range hintNames {
		if s == name {
			return h, nil
		}
	}
	n, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown power hint %q", s)
	}
	return Hint(n), nil
}
