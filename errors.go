/*
 * errors.go, part of goTME.
 *
 * Copyright 2024 Raul Mera <rmera{at}usachDOTcl>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package tme

import (
	"errors"
	"fmt"

	"github.com/rmera/gotme/comm"
)

//This error predates the "wrapping" error system of Go (i.e. the "%w" directive and the errors package). We should avoid
//using the Decorate method and/or make it use the "%w" directive internally.

// ErrorInt is the interface for errors that all packages in this library implement. The Decorate method allows to add and retrieve info from the
// error, without changing it's type or wrapping it around something else.
type ErrorInt interface {
	Error() string
	Decorate(string) []string //If passed an empty string, it should just return the current decoration, not add the empty string to it.
	//The decorate slice should contain a list of functions in the calling stack, plus, for each function any relevant information, or nothing.
	Critical() bool //A critical error means that no partial physics result is meaningful and the whole job must stop.
}

// Error is the concrete error for the tme package. The filename field holds
// the input file associated to the failure, or an empty string if none.
type Error struct {
	message  string
	filename string
	deco     []string
	critical bool
}

func (err Error) Error() string {
	if err.filename == "" {
		return err.message
	}
	return fmt.Sprintf("file %s: %s", err.filename, err.message)
}

// Decorate adds new information to the error
func (err Error) Decorate(deco string) []string {
	//Even though this method does not use a pointer as a receiver, and tries to alter the receiver,
	//it should work, since err.deco is a slice, and hence a pointer itself.
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

// FileName returns the file associated to the error, if any.
func (err Error) FileName() string { return err.filename }

// Critical returns true if the error is critical, false otherwise. All
// consistency errors between the bra and ket systems are critical.
func (err Error) Critical() bool { return err.critical }

// errDecorate asserts that the error implements ErrorInt and decorates it
// with the caller's name before returning it. A non-ErrorInt error is
// wrapped into a critical Error instead (unlike goChem we can't afford to
// panic in the middle of a week-long batch run without a message).
func errDecorate(err error, caller string) error {
	if errors.Is(err, comm.ErrAborted) {
		//abort notifications must stay recognizable to comm.Run, which
		//uses them to tell the failing rank from the ranks it released
		return err
	}
	err2, ok := err.(ErrorInt)
	if !ok {
		return Error{err.Error(), "", []string{caller}, true}
	}
	err2.Decorate(caller)
	return err2
}

// PanicMsg is a message used for panics, even though it does satisfy the error interface.
// for errors use Error.
type PanicMsg string

func (v PanicMsg) Error() string { return string(v) }

const (
	ErrNilSystem       = PanicMsg("goTME: nil crystal system")
	ErrBuffersNotReady = PanicMsg("goTME: per-k-point buffers not allocated")
	ErrBadRole         = PanicMsg("goTME: a system role must be RoleBra or RoleKet")
	ErrLOutOfRange     = PanicMsg("goTME: angular momentum out of tabulated range")
)

// Messages for the constructors of Error. They are not exhaustive: errors
// carrying measured-vs-expected numbers are built with fmt.Sprintf at the site.
const (
	WrongFormat    = "wrong format in Export file"
	UnableToOpen   = "unable to open file"
	ShortRead      = "file ends before the expected record"
	Inconsistent   = "bra and ket Export trees are not compatible"
	Unsupported    = "unsupported configuration"
	MissingInput   = "required input not set"
	BadBandBounds  = "inconsistent band bounds"
	BadEnergyTable = "energy table does not match the requested transitions"
)
