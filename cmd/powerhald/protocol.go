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

package main

import (
	"encoding/gob"

	"github.com/omnirom/powerhal/internal/power"
)

type PowerAction struct {
	Action interface{}
}

// ActionPowerHint delivers a power hint. Data is the hint payload; for
// the power-profile hint it is the profile string. The response is an
// ActionResponse, sent once the hint has been dispatched.
type ActionPowerHint struct {
	Hint power.Hint
	Data string
}

// ActionSetInteractive switches the governor between its interactive and
// idle tuning.
type ActionSetInteractive struct {
	On bool
}

// ActionSetLowPower sets the low-power flag consulted when a CPU comes
// online.
type ActionSetLowPower struct {
	On bool
}

// ActionStatus returns an ActionResponse carrying the module status.
type ActionStatus struct {
}

type ActionResponse struct {
	Err    string
	Status *power.Status
}

func init() {
	gob.Register(ActionPowerHint{})
	gob.Register(ActionSetInteractive{})
	gob.Register(ActionSetLowPower{})
	gob.Register(ActionStatus{})
}
