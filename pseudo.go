/*
 * pseudo.go, part of goTME.
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
/***Dedicated to the long life of the Ven. Khenpo Phuntzok Tenzin Rinpoche***/

package tme

import "fmt"

// MaxSupportedL is the highest angular momentum the PAW coupling handles.
// Pseudopotentials with f channels or beyond are rejected, not truncated.
const MaxSupportedL = 2

// AtomType holds the PAW radial data of one pseudopotential after the
// radial-integral tensors have been derived. The AE/PS partial waves and
// the grid derivative are gone at this point; only what the overlap engine
// needs survives.
//
// The tensors, with d = wae-wps the all-electron/pseudo difference and the
// radial index running over the augmentation sphere, are
//
//	F[c][ir]        = d_c[ir] * r[ir] * dr[ir]
//	F1Bra[j][c][ir] = wps_j[ir] * d_c[ir] * dr[ir]
//	F1Ket[j][c][ir] = wps_c[ir] * d_j[ir] * dr[ir]
//	F2[j][c][ir]    = d_j[ir] * d_c[ir] * dr[ir]
//
// The two F1 tensors are indexed differently on purpose: which channel
// carries the smooth (pseudo) factor and which the difference encodes
// whether the correction multiplies the conjugated or the plain projection
// in the one-center sum, and the two sides of the overlap read them with
// their index pairs swapped. Do not merge them into one table.
type AtomType struct {
	Element   string
	NChannels int
	L         []int //angular momentum per channel
	LMMax     int   //sum over channels of 2l+1
	IRAugMax  int
	RadGrid   []float64
	F         [][]float64
	F1Bra     [][][]float64
	F1Ket     [][][]float64
	F2        [][][]float64
}

// PseudoTable is the read-only set of atom types shared by both crystal
// systems for the whole run. It is built once, from the system with the
// larger atom-type count.
type PseudoTable struct {
	Types []AtomType
	maxL  int
}

// NewPseudoTable derives the radial-integral tensors from the raw
// pseudopotential blocks of one Export tree.
func NewPseudoTable(raw []RawAtomType) (*PseudoTable, error) {
	pt := &PseudoTable{Types: make([]AtomType, len(raw))}
	for i := range raw {
		if err := deriveAtomType(&raw[i], &pt.Types[i]); err != nil {
			return nil, errDecorate(err, "NewPseudoTable")
		}
		for _, l := range raw[i].L {
			if l > pt.maxL {
				pt.maxL = l
			}
		}
	}
	return pt, nil
}

func deriveAtomType(raw *RawAtomType, at *AtomType) error {
	for _, l := range raw.L {
		if l < 0 || l > MaxSupportedL {
			return Error{fmt.Sprintf("%s: %s has an l=%d channel, only s, p and d are handled", Unsupported, raw.Element, l), "", nil, true}
		}
	}
	at.Element = raw.Element
	at.NChannels = raw.NChannels
	at.L = append([]int{}, raw.L...)
	at.LMMax = raw.LMMax
	at.IRAugMax = raw.IRAugMax
	at.RadGrid = raw.RadGrid
	nc := raw.NChannels
	naug := raw.IRAugMax
	at.F = make([][]float64, nc)
	at.F1Bra = make([][][]float64, nc)
	at.F1Ket = make([][][]float64, nc)
	at.F2 = make([][][]float64, nc)
	for j := 0; j < nc; j++ {
		at.F[j] = make([]float64, naug)
		dj := diff(raw.AEWave[j], raw.PSWave[j], naug)
		for ir := 0; ir < naug; ir++ {
			at.F[j][ir] = dj[ir] * raw.RadGrid[ir] * raw.DRadGrid[ir]
		}
		at.F1Bra[j] = make([][]float64, nc)
		at.F1Ket[j] = make([][]float64, nc)
		at.F2[j] = make([][]float64, nc)
		for c := 0; c < nc; c++ {
			dc := diff(raw.AEWave[c], raw.PSWave[c], naug)
			f1b := make([]float64, naug)
			f1k := make([]float64, naug)
			f2 := make([]float64, naug)
			for ir := 0; ir < naug; ir++ {
				dr := raw.DRadGrid[ir]
				f1b[ir] = raw.PSWave[j][ir] * dc[ir] * dr
				f1k[ir] = raw.PSWave[c][ir] * dj[ir] * dr
				f2[ir] = dj[ir] * dc[ir] * dr
			}
			at.F1Bra[j][c] = f1b
			at.F1Ket[j][c] = f1k
			at.F2[j][c] = f2
		}
	}
	//the waves did their job; don't let a stray reference to the raw block
	//keep them alive for the rest of the run.
	raw.AEWave = nil
	raw.PSWave = nil
	raw.DRadGrid = nil
	return nil
}

func diff(ae, ps []float64, n int) []float64 {
	d := make([]float64, n)
	for i := range d {
		d[i] = ae[i] - ps[i]
	}
	return d
}

// MaxL returns the largest angular momentum over all types.
func (pt *PseudoTable) MaxL() int { return pt.maxL }

// MatchElements verifies that the atom types of another Export tree agree,
// slot by slot, with the table. The other tree may declare fewer types (the
// table is always built from the richer system) but never different
// elements in a shared slot: that would mean the two trees describe
// different materials and any overlap between them is meaningless.
func (pt *PseudoTable) MatchElements(other []RawAtomType) error {
	if len(other) > len(pt.Types) {
		return Error{fmt.Sprintf("%s: %d atom types against %d in the table", Inconsistent, len(other), len(pt.Types)), "", nil, true}
	}
	for i := range other {
		if other[i].Element != pt.Types[i].Element {
			return Error{fmt.Sprintf("%s: atom type %d is %s in one system and %s in the other", Inconsistent, i+1, pt.Types[i].Element, other[i].Element), "", nil, true}
		}
	}
	return nil
}
