/*
 * results.go, part of goTME.
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
	"fmt"
	"math/cmplx"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

//One output file per (k-point, spin), named allElecOverlap.<spin>.<k>. The
//existence of the file is the resumability marker; its content is never
//re-validated. The numeric fields use Fortran edit-descriptor layouts
//(i10, ES24.15E3, L4) so existing downstream tooling keeps working.
//
//In an order-1 capture record the overlap columns already hold the finite
//difference divided by dq, not the raw overlap; dq itself travels in the
//header line, so the raw value can be recovered.

// PairResult is one row of an overlap-only record.
type PairResult struct {
	IbBra, IbKet int
	U            complex128
}

// TransitionResult is one row of a capture record: initial band, overlap
// (possibly baseline-subtracted) and the physically scaled modulus.
type TransitionResult struct {
	Ibi    int
	U      complex128
	Scaled float64
}

// Record is the content of one result file.
type Record struct {
	NKPoints int
	IK       int
	ISpin    int
	Omega    float64
	Capture  bool

	Pairs []PairResult //overlap-only records

	//capture records
	IbiFirst, IbiLast, Ibf int
	Order                  int
	PhononMode             int
	Dq                     float64
	Transitions            []TransitionResult
}

// ResultPath returns the file of the (ik, isp) record under dir.
func ResultPath(dir string, ik, isp int) string {
	return filepath.Join(dir, fmt.Sprintf("allElecOverlap.%d.%d", isp, ik))
}

// formatES renders v the way Fortran's ES24.15E3 does: scientific notation,
// 15 decimals, a three-digit exponent, right-justified to 24 columns.
func formatES(v float64) string {
	s := strconv.FormatFloat(v, 'E', 15, 64)
	i := strings.IndexByte(s, 'E')
	mant, exp := s[:i], s[i+1:]
	sign := "+"
	if exp[0] == '+' || exp[0] == '-' {
		sign = string(exp[0])
		exp = exp[1:]
	}
	for len(exp) < 3 {
		exp = "0" + exp
	}
	return fmt.Sprintf("%24s", mant+"E"+sign+exp)
}

func formatL4(v bool) string {
	if v {
		return "   T"
	}
	return "   F"
}

// WriteRecord writes r under dir, creating the directory if needed. The
// file appears atomically (write to a temporary name, then rename) so a
// crash mid-write can not leave a file that a restart would take for a
// complete checkpoint.
func WriteRecord(dir string, r *Record) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Error{err.Error(), dir, []string{"WriteRecord"}, true}
	}
	path := ResultPath(dir, r.IK, r.ISpin)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return Error{err.Error(), tmp, []string{"WriteRecord"}, true}
	}
	w := func(format string, args ...interface{}) {
		fmt.Fprintf(f, format, args...)
	}
	w("# Total number of k-points, k-point index, spin index. Format: '(3i10)'\n")
	w("%10d%10d%10d\n", r.NKPoints, r.IK, r.ISpin)
	w("# Cell volume (a.u.)^3. Format: '(ES24.15E3)'\n")
	w("%s\n", formatES(r.Omega))
	w("# Capture calculation? Format: '(L4)'\n")
	w("%s\n", formatL4(r.Capture))
	w("# Matrix elements\n")
	if !r.Capture {
		w("%10d\n", len(r.Pairs))
		for _, p := range r.Pairs {
			a2 := real(p.U)*real(p.U) + imag(p.U)*imag(p.U)
			w("%10d%10d%s%s%s\n", p.IbBra, p.IbKet, formatES(real(p.U)), formatES(imag(p.U)), formatES(a2))
		}
	} else {
		w("%10d%10d%10d%10d\n", len(r.Transitions), r.IbiFirst, r.IbiLast, r.Ibf)
		if r.Order == 1 {
			w("%7d%s\n", r.PhononMode, formatES(r.Dq))
		}
		w("# ibi, Re(U), Im(U), |U|^2, scaled |U|^2\n")
		for _, t := range r.Transitions {
			a2 := real(t.U)*real(t.U) + imag(t.U)*imag(t.U)
			w("%10d%s%s%s%s\n", t.Ibi, formatES(real(t.U)), formatES(imag(t.U)), formatES(a2), formatES(t.Scaled))
		}
	}
	if err := f.Close(); err != nil {
		return Error{err.Error(), tmp, []string{"WriteRecord"}, true}
	}
	if err := os.Rename(tmp, path); err != nil {
		return Error{err.Error(), path, []string{"WriteRecord"}, true}
	}
	return nil
}

// ReadOptions steer ReadRecord. The zero value reads a current-format file
// whole.
type ReadOptions struct {
	OldFormat bool //legacy layout: no capture flag in the header and no
	//scaled column; the scaled modulus is derived from NewDE when given
	BandLo, BandHi int       //keep rows with this (inclusive) initial/bra band range; both zero keeps all
	NewDE          []float64 //energy differences, indexed ibi-IbiFirst, to (re)compute the scaled modulus
}

// ReadRecord parses a result file written by WriteRecord, or by the legacy
// tooling if opts.OldFormat says so. Band filtering and rescaling happen on
// the fly so baseline trees too large for memory can be consumed row by row.
func ReadRecord(path string, opts ReadOptions) (*Record, error) {
	fin, err := openText(path)
	if err != nil {
		return nil, errDecorate(err, "ReadRecord")
	}
	defer fin.Close()
	t := newTokens(fin, path)
	r := &Record{}
	if r.NKPoints, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadRecord")
	}
	if r.IK, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadRecord")
	}
	if r.ISpin, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadRecord")
	}
	if r.Omega, err = t.Float(); err != nil {
		return nil, errDecorate(err, "ReadRecord")
	}
	if opts.OldFormat {
		//the legacy files were capture-only and carried no flag
		r.Capture = true
	} else if r.Capture, err = t.Bool(); err != nil {
		return nil, errDecorate(err, "ReadRecord")
	}
	keep := func(ib int) bool {
		if opts.BandLo == 0 && opts.BandHi == 0 {
			return true
		}
		return ib >= opts.BandLo && ib <= opts.BandHi
	}
	if !r.Capture {
		n, err := t.Int()
		if err != nil {
			return nil, errDecorate(err, "ReadRecord")
		}
		for i := 0; i < n; i++ {
			var p PairResult
			if p.IbBra, err = t.Int(); err != nil {
				return nil, errDecorate(err, "ReadRecord")
			}
			if p.IbKet, err = t.Int(); err != nil {
				return nil, errDecorate(err, "ReadRecord")
			}
			re, err := t.Float()
			if err != nil {
				return nil, errDecorate(err, "ReadRecord")
			}
			im, err := t.Float()
			if err != nil {
				return nil, errDecorate(err, "ReadRecord")
			}
			if _, err = t.Float(); err != nil { //|U|^2, redundant
				return nil, errDecorate(err, "ReadRecord")
			}
			p.U = complex(re, im)
			if keep(p.IbBra) {
				r.Pairs = append(r.Pairs, p)
			}
		}
		return r, nil
	}
	n, err := t.Int()
	if err != nil {
		return nil, errDecorate(err, "ReadRecord")
	}
	if r.IbiFirst, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadRecord")
	}
	if r.IbiLast, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadRecord")
	}
	if r.Ibf, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadRecord")
	}
	//an order-1 file carries an extra "phononMode dq" line before the
	//rows. Rows have a fixed token count (5 current, 4 legacy), so the
	//remainder of the token count modulo the row width tells the two
	//layouts apart without a flag in the file.
	rows := make([]string, 0, 16)
	for {
		s, err := t.next()
		if err != nil {
			break //EOF
		}
		rows = append(rows, s)
	}
	fields := 4 //ibi, Re, Im, |U|^2
	if !opts.OldFormat {
		fields = 5 //plus the scaled modulus
	}
	pos := 0
	if rem := len(rows) % fields; rem == 2 && len(rows) > 2 {
		//leading "phononMode dq" line
		r.Order = 1
		if r.PhononMode, err = strconv.Atoi(rows[0]); err != nil {
			return nil, Error{fmt.Sprintf("%s: bad phonon-mode field %q", WrongFormat, rows[0]), path, []string{"ReadRecord"}, true}
		}
		if r.Dq, err = strconv.ParseFloat(rows[1], 64); err != nil {
			return nil, Error{fmt.Sprintf("%s: bad dq field %q", WrongFormat, rows[1]), path, []string{"ReadRecord"}, true}
		}
		pos = 2
	}
	if (len(rows)-pos)/fields != n {
		return nil, Error{fmt.Sprintf("%s: %d transitions declared, %d rows found", WrongFormat, n, (len(rows)-pos)/fields), path, []string{"ReadRecord"}, true}
	}
	for i := 0; i < n; i++ {
		var tr TransitionResult
		var re, im float64
		if tr.Ibi, err = strconv.Atoi(rows[pos]); err != nil {
			return nil, Error{fmt.Sprintf("%s: bad band field %q", WrongFormat, rows[pos]), path, []string{"ReadRecord"}, true}
		}
		if re, err = strconv.ParseFloat(rows[pos+1], 64); err != nil {
			return nil, Error{fmt.Sprintf("%s: bad field %q", WrongFormat, rows[pos+1]), path, []string{"ReadRecord"}, true}
		}
		if im, err = strconv.ParseFloat(rows[pos+2], 64); err != nil {
			return nil, Error{fmt.Sprintf("%s: bad field %q", WrongFormat, rows[pos+2]), path, []string{"ReadRecord"}, true}
		}
		tr.U = complex(re, im)
		if opts.OldFormat {
			tr.Scaled = real(tr.U)*real(tr.U) + imag(tr.U)*imag(tr.U)
		} else {
			if tr.Scaled, err = strconv.ParseFloat(rows[pos+4], 64); err != nil {
				return nil, Error{fmt.Sprintf("%s: bad field %q", WrongFormat, rows[pos+4]), path, []string{"ReadRecord"}, true}
			}
		}
		if opts.NewDE != nil {
			idx := tr.Ibi - r.IbiFirst
			if idx < 0 || idx >= len(opts.NewDE) {
				return nil, Error{fmt.Sprintf("%s: band %d outside the supplied energy table", BadEnergyTable, tr.Ibi), path, []string{"ReadRecord"}, true}
			}
			de := opts.NewDE[idx]
			tr.Scaled = de * de * cmplx.Abs(tr.U) * cmplx.Abs(tr.U)
		}
		pos += fields
		if keep(tr.Ibi) {
			r.Transitions = append(r.Transitions, tr)
		}
	}
	return r, nil
}
