// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

// ParamState lifecycle of a parameter set table entry.
type ParamState uint8

// Parameter set states.
const (
	// NeverParsed no successful parse at this id yet.
	NeverParsed ParamState = iota
	// Current the last parse at this id succeeded.
	Current
	// Stale the last parse at this id failed, the previous value is kept.
	Stale
	// Poisoned the set does not fit the stream settings; unusable until
	// a new successful parse at this id.
	Poisoned
)

var paramStateNames = [...]string{"never-parsed", "current", "stale", "poisoned"}

func (s ParamState) String() string {
	if int(s) < len(paramStateNames) {
		return paramStateNames[s]
	}
	return "unknown"
}

// Usable reports whether the entry may be referenced by a slice.
func (s ParamState) Usable() bool {
	return s == Current || s == Stale
}

// Failed returns the state after a failed parse at the entry.
func (s ParamState) Failed() ParamState {
	if s == Current {
		return Stale
	}
	return s
}
