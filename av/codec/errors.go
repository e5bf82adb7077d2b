// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"

	"github.com/pkg/errors"
)

// Parse outcomes. Parsers wrap them with context, use Outcome to classify.
var (
	ErrMalformed    = errors.New("malformed syntax")
	ErrUnsupported  = errors.New("unsupported stream feature")
	ErrIncompatible = errors.New("not compatible with stream settings")
)

// Outcome returns the parse outcome sentinel behind err, or err itself.
func Outcome(err error) error {
	return errors.Cause(err)
}

// Malformedf returns a malformed error with a formatted context.
func Malformedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformed, format, args...)
}

// Unsupportedf returns an unsupported error with a formatted context.
func Unsupportedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnsupported, format, args...)
}

// Incompatiblef returns an incompatible error with a formatted context.
func Incompatiblef(format string, args ...interface{}) error {
	return errors.Wrapf(ErrIncompatible, format, args...)
}

// RecoverMalformed converts a panic of the bit reader into a malformed error.
// Usage: defer codec.RecoverMalformed(&err, "sps")
func RecoverMalformed(err *error, what string) {
	if r := recover(); r != nil {
		*err = Malformedf("%s truncated: %v", what, r)
	}
}

// Code 解码器错误码；ErrorFlag 置位表示错误，否则为警告
type Code uint32

// ErrorFlag severity bit of a Code.
const ErrorFlag Code = 0x80

// Error codes.
const (
	Success               Code = 0
	WarnConcealDetect     Code = 0x01
	WarnSPSNotCompatible  Code = 0x02
	WarnRefListIncomplete Code = 0x03
	WarnStreamOverflow    Code = 0x04
	ErrNoMemory           Code = ErrorFlag | 0x07
	ErrResolutionChange   Code = ErrorFlag | 0x08
	ErrChanCreation       Code = ErrorFlag | 0x10
	ErrRequestMalformed   Code = ErrorFlag | 0x11
	ErrEngine             Code = ErrorFlag | 0x20
)

var codeNames = map[Code]string{
	Success:               "success",
	WarnConcealDetect:     "concealment detected",
	WarnSPSNotCompatible:  "sps not compatible with channel settings",
	WarnRefListIncomplete: "reference list incomplete",
	WarnStreamOverflow:    "too many slices in picture",
	ErrNoMemory:           "no memory",
	ErrResolutionChange:   "resolution change",
	ErrChanCreation:       "channel creation failed",
	ErrRequestMalformed:   "malformed request",
	ErrEngine:             "decode engine failure",
}

// IsError reports whether the code is error level.
func (c Code) IsError() bool {
	return c&ErrorFlag != 0
}

// IsWarning reports whether the code is a warning.
func (c Code) IsWarning() bool {
	return c != Success && !c.IsError()
}

func (c Code) Error() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	if c.IsError() {
		return fmt.Sprintf("error 0x%02x", uint32(c))
	}
	return fmt.Sprintf("warning 0x%02x", uint32(c))
}
