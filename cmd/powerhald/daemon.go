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
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"runtime"

	"github.com/omnirom/powerhal/internal/config"
	"github.com/omnirom/powerhal/internal/logging"
	"github.com/omnirom/powerhal/internal/power"
	"github.com/sirupsen/logrus"
	"inet.af/peercred"
)

// HAL is the part of the power module the control socket exposes.
type HAL interface {
	PowerHint(hint power.Hint, data interface{})
	SetInteractive(on bool)
	SetLowPower(on bool)
	Status() power.Status
}

func doDaemon(ctx context.Context, cfg *config.Config) error {
	logger := logging.GetLogger()

	module := power.New(cfg, power.Options{})
	if err := module.Init(ctx); err != nil {
		return err
	}
	defer module.Close()

	l, err := listen(cfg.Socket, os.FileMode(cfg.SocketMode))
	if err != nil {
		return err
	}
	logger.WithField("socket", cfg.Socket).Info("powerhald ready")
	return serve(ctx, l, module)
}

func listen(path string, mode os.FileMode) (net.Listener, error) {
	// Linux supports an abstract namespace for UNIX domain sockets (see unix(7)).
	// These do not involve the filesystem, and are world-connectable.
	isAbstractSocket := runtime.GOOS == "linux" && len(path) > 1 && path[0] == '@'
	if !isAbstractSocket {
		os.Remove(path)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if !isAbstractSocket {
		if err := os.Chmod(path, mode); err != nil {
			l.Close()
			return nil, err
		}
	}
	return l, nil
}

// serve accepts connections on l until ctx is done.
func serve(ctx context.Context, l net.Listener, hal HAL) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		go func(c net.Conn) {
			defer c.Close()
			NewServer(c, hal).Serve()
		}(conn)
	}
}

type Server struct {
	c        net.Conn
	hal      HAL
	userName string
	log      *logrus.Entry
}

func send(log *logrus.Entry, enc *gob.Encoder, a interface{}) bool {
	if err := enc.Encode(a); err != nil {
		log.WithError(err).Errorf("could not send response %T %v", a, a)
		return false
	}
	log.Debugf("-> %T %+v", a, a)
	return true
}

func NewServer(c net.Conn, hal HAL) *Server {
	return &Server{c: c, hal: hal, log: logging.Component("daemon")}
}

func (s *Server) Serve() {
	// Get connection credentials.
	cred, err := peercred.Get(s.c)
	if err != nil {
		s.log.WithError(err).Error("reading credentials")
		return
	}

	s.userName = "???"
	if uid, ok := cred.UserID(); ok {
		if u, err := user.LookupId(uid); err == nil {
			s.userName = u.Username
		} else {
			s.userName = uid
		}
	}
	s.log = s.log.WithField("user", s.userName)

	gr := gob.NewDecoder(s.c)
	gw := gob.NewEncoder(s.c)
	for {
		var msg PowerAction
		if err := gr.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.WithError(err).Error("decoding action")
			}
			return
		}
		s.log.Debugf("<- %T%+v", msg.Action, msg.Action)

		var resp ActionResponse
		switch action := msg.Action.(type) {
		case ActionPowerHint:
			s.log.WithFields(logrus.Fields{"hint": action.Hint, "data": action.Data}).Info("power hint")
			s.hal.PowerHint(action.Hint, action.Data)

		case ActionSetInteractive:
			s.log.WithField("interactive", action.On).Info("set interactive")
			s.hal.SetInteractive(action.On)

		case ActionSetLowPower:
			s.log.WithField("low_power", action.On).Info("set low power")
			s.hal.SetLowPower(action.On)

		case ActionStatus:
			st := s.hal.Status()
			resp.Status = &st

		default:
			s.log.Errorf("protocol error: unknown message %T", msg.Action)
			resp.Err = fmt.Sprintf("unknown action %T", msg.Action)
			send(s.log, gw, resp)
			return
		}
		if !send(s.log, gw, resp) {
			return
		}
	}
}
