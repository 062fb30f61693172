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

// Package profile parses and applies power profiles.
//
// A profile is a ':'-separated sequence of tag/value tokens, for example
//
//	maxCpu:2:maxFreq:max
//
// Recognized tags are "maxCpu" and "maxFreq". The value "max" stands for
// the device's topology bound. Values are not validated; the kernel
// rejects what it does not accept.
package profile

import (
	"errors"
	"fmt"
	"strings"
)

const (
	TagMaxCPU  = "maxCpu"
	TagMaxFreq = "maxFreq"
	// Max selects the topology bound instead of a literal value.
	Max       = "max"
	Separator = ':'
)

var ErrMissingValue = errors.New("tag has no value")

type ParseError struct {
	Tag string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("profile tag %q: %v", e.Tag, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Directive is the parsed form of one profile. An empty field means the
// profile did not mention that tag.
type Directive struct {
	MaxCPU  string
	MaxFreq string
}

// Tokenizer yields the non-empty tokens of a profile string one at a time.
// Runs of separators count as one.
type Tokenizer struct {
	rest string
}

func NewTokenizer(s string) *Tokenizer {
	return &Tokenizer{rest: s}
}

// Next returns the next token, or false when the input is exhausted.
func (t *Tokenizer) Next() (string, bool) {
	t.rest = strings.TrimLeft(t.rest, string(Separator))
	if t.rest == "" {
		return "", false
	}
	tok, rest, _ := strings.Cut(t.rest, string(Separator))
	t.rest = rest
	return tok, true
}

// Parse reads a profile. The token following a recognized tag is taken as
// its value even if it looks like a tag; an unrecognized token is skipped
// on its own, so its value is then considered as a tag. When a tag repeats
// the last value wins. A recognized tag at the end of the input is an
// error and nothing from the profile is used.
func Parse(s string) (Directive, error) {
	var d Directive
	t := NewTokenizer(s)
	for tok, ok := t.Next(); ok; tok, ok = t.Next() {
		var dst *string
		switch tok {
		case TagMaxCPU:
			dst = &d.MaxCPU
		case TagMaxFreq:
			dst = &d.MaxFreq
		default:
			continue
		}
		v, ok := t.Next()
		if !ok {
			return Directive{}, &ParseError{Tag: tok, Err: ErrMissingValue}
		}
		*dst = v
	}
	return d, nil
}
