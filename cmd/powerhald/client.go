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
	"errors"
	"fmt"
	"net"

	"github.com/omnirom/powerhal/internal/logging"
	"github.com/omnirom/powerhal/internal/power"
)

type Client struct {
	c net.Conn

	gr *gob.Encoder
	gw *gob.Decoder
}

func NewClient(socketPath string) (*Client, error) {
	c, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w (is powerhald running?)", err)
	}

	gr, gw := gob.NewEncoder(c), gob.NewDecoder(c)

	return &Client{c, gr, gw}, nil
}

func (c *Client) Close() error {
	return c.c.Close()
}

func (c *Client) do(action PowerAction) (*ActionResponse, error) {
	logger := logging.GetLogger()

	logger.Debugf("-> (%T) %+v", action.Action, action.Action)
	if err := c.gr.Encode(action); err != nil {
		return nil, err
	}

	var resp ActionResponse
	err := c.gw.Decode(&resp)
	logger.Debugf("<- %+v", resp)
	if err != nil {
		return nil, err
	}
	if resp.Err != "" {
		return &resp, errors.New(resp.Err)
	}
	return &resp, nil
}

func (c *Client) PowerHint(hint power.Hint, data string) error {
	_, err := c.do(PowerAction{ActionPowerHint{Hint: hint, Data: data}})
	return err
}

func (c *Client) SetInteractive(on bool) error {
	_, err := c.do(PowerAction{ActionSetInteractive{On: on}})
	return err
}

func (c *Client) SetLowPower(on bool) error {
	_, err := c.do(PowerAction{ActionSetLowPower{On: on}})
	return err
}

func (c *Client) Status() (*power.Status, error) {
	resp, err := c.do(PowerAction{ActionStatus{}})
	if err != nil {
		return nil, err
	}
	if resp.Status == nil {
		return nil, errors.New("daemon sent no status")
	}
	return resp.Status, nil
}
