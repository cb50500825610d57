/*
 * system.go, part of goTME.
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

import (
	"fmt"
	"math/cmplx"
	"path/filepath"

	"github.com/rmera/gotme/comm"
)

// Role tells whether a crystal system is the bra or the ket of the overlap.
// It carries the two things the role changes: the sign of the atomic phase
// factors and whether the system's complex quantities enter conjugated.
// A Role is selected once per system; no string tags are compared anywhere.
type Role int

const (
	RoleBra Role = iota
	RoleKet
)

func (r Role) String() string {
	switch r {
	case RoleBra:
		return "bra"
	case RoleKet:
		return "ket"
	}
	return "invalid"
}

// PhaseSign is +1 for the bra and -1 for the ket: phases are exp(+iG.R) on
// the bra side and exp(-iG.R) on the ket side. The same sign folds into the
// i^l factor of the reciprocal-space PAW term.
func (r Role) PhaseSign() float64 {
	if r == RoleBra {
		return 1
	}
	return -1
}

// Conj conjugates z for the bra role and returns it untouched for the ket.
func (r Role) Conj(z complex128) complex128 {
	if r == RoleBra {
		return conj(z)
	}
	return z
}

// CrystalSystem is the per-system (bra or ket) state: the atoms and their
// phase factors, plus the buffers that are repopulated at every k-point and
// freed afterwards to bound the memory of long runs.
type CrystalSystem struct {
	Role Role
	Meta *ExportMeta

	// exp(sign i G.R) per atom, over the local G shard; built once.
	PhaseExpGR [][]complex128

	//per-k-point buffers
	NGkLocal        int
	GkOffset        int
	Wfc             []complex128   //local G+k coefficients of the current band
	Beta            [][]complex128 //[local G+k][projector]
	Projection      []complex128   //own projections of the current band, from file
	CrossProjection []complex128   //the other system's wavefunction on our projectors
	PawK            []complex128   //reciprocal-space one-center correction, local G shard
	PawWfc          complex128     //one-center wavefunction correction of the current pair

	//which (band, spin) the spin-dependent buffers belong to; 0 band means none
	loadedBand int
	loadedSpin int
}

// NewCrystalSystem builds the per-atom phase table of one system over the
// local G shard.
func NewCrystalSystem(role Role, meta *ExportMeta, grid *GridModel) *CrystalSystem {
	if role != RoleBra && role != RoleKet {
		panic(ErrBadRole)
	}
	s := &CrystalSystem{Role: role, Meta: meta}
	sign := role.PhaseSign()
	s.PhaseExpGR = make([][]complex128, meta.NAtoms)
	for ia := range s.PhaseExpGR {
		row := make([]complex128, grid.LocalCount)
		r := meta.Positions[ia]
		for ig := 0; ig < grid.LocalCount; ig++ {
			gr := grid.GCart[ig][0]*r[0] + grid.GCart[ig][1]*r[1] + grid.GCart[ig][2]*r[2]
			row[ig] = cmplx.Exp(complex(0, sign*gr))
		}
		s.PhaseExpGR[ia] = row
	}
	return s
}

// AllocateK sets up the per-k-point buffers for a local G+k block of
// nGkLocal vectors starting at gkOffset, and invalidates any band data.
func (s *CrystalSystem) AllocateK(grid *GridModel, nGkLocal, gkOffset int) {
	s.NGkLocal = nGkLocal
	s.GkOffset = gkOffset
	s.Wfc = make([]complex128, nGkLocal)
	s.Beta = make([][]complex128, nGkLocal)
	for i := range s.Beta {
		s.Beta[i] = make([]complex128, s.Meta.NProj)
	}
	s.Projection = make([]complex128, s.Meta.NProj)
	s.CrossProjection = make([]complex128, s.Meta.NProj)
	s.PawK = make([]complex128, grid.LocalCount)
	s.loadedBand, s.loadedSpin = 0, 0
}

// FreeK drops the per-k-point buffers.
func (s *CrystalSystem) FreeK() {
	s.Wfc, s.Beta, s.Projection, s.CrossProjection, s.PawK = nil, nil, nil, nil, nil
	s.NGkLocal, s.GkOffset = 0, 0
	s.loadedBand, s.loadedSpin = 0, 0
}

// BandCurrent reports whether the spin-dependent buffers already hold band
// ib at spin isp. For a single-spin system any loaded spin serves every
// requested spin; this is where the spin-2-reuses-spin-1 shortcut lives,
// and why loadedSpin must track whether spin 1 was actually computed rather
// than skipped.
func (s *CrystalSystem) BandCurrent(ib, isp int) bool {
	if s.loadedBand != ib || s.loadedSpin == 0 {
		return false
	}
	return s.loadedSpin == isp || s.Meta.NSpins == 1
}

func (s *CrystalSystem) markLoaded(ib, isp int) {
	s.loadedBand = ib
	s.loadedSpin = isp
}

// fileSpin clamps the requested spin to what the system actually has, so a
// single-spin system read under the spin-2 label opens its only channel.
func (s *CrystalSystem) fileSpin(isp int) int {
	if isp > s.Meta.NSpins {
		return s.Meta.NSpins
	}
	return isp
}

// ReadProjectors fills Beta with this rank's G+k block of the projector
// file of k-point ik (1-based). Record 1 of the file is reserved; the
// record of the 1-based G+k index igk is igk+1.
func (s *CrystalSystem) ReadProjectors(ik int) error {
	if s.Beta == nil {
		panic(ErrBuffersNotReady)
	}
	path := filepath.Join(s.Meta.Dir, fmt.Sprintf("projectors.%d", ik))
	recLen := int64(16 * s.Meta.NProj)
	rf, err := openRecordFile(path, recLen)
	if err != nil {
		return errDecorate(err, "ReadProjectors")
	}
	defer rf.Close()
	for i := 0; i < s.NGkLocal; i++ {
		if err := rf.ReadComplex128(int64(s.GkOffset+i)+2, s.Beta[i]); err != nil {
			return errDecorate(err, "ReadProjectors")
		}
	}
	return nil
}

// ReadWfc loads the plane-wave coefficients of band ib (1-based) at
// (ik, isp) into Wfc. The pool root reads the whole record and scatters the
// G+k blocks; the coefficients are stored single precision on file.
func (s *CrystalSystem) ReadWfc(pool *comm.Comm, ik, isp, ib int) error {
	if s.Wfc == nil {
		panic(ErrBuffersNotReady)
	}
	var full []complex128
	var segs [][]complex128
	if pool.Root() {
		nPW := s.Meta.NPWs[ik-1]
		path := filepath.Join(s.Meta.Dir, fmt.Sprintf("wfc.%d.%d", s.fileSpin(isp), ik))
		rf, err := openRecordFile(path, int64(8*nPW))
		if err != nil {
			pool.Abort()
			return errDecorate(err, "ReadWfc")
		}
		full = make([]complex128, nPW)
		err = rf.ReadComplex64(int64(ib), full)
		rf.Close()
		if err != nil {
			pool.Abort()
			return errDecorate(err, "ReadWfc")
		}
		segs = comm.Segments(full, pool.Size())
	}
	if err := pool.ScatterComplexSlice(segs, 0, s.Wfc); err != nil {
		return errDecorate(err, "ReadWfc")
	}
	return nil
}

// ReadProjections loads the stored projection vector of band ib at
// (ik, isp): the pool root reads the record and broadcasts it.
func (s *CrystalSystem) ReadProjections(pool *comm.Comm, ik, isp, ib int) error {
	if s.Projection == nil {
		panic(ErrBuffersNotReady)
	}
	if pool.Root() {
		path := filepath.Join(s.Meta.Dir, fmt.Sprintf("projections.%d.%d", s.fileSpin(isp), ik))
		rf, err := openRecordFile(path, int64(16*s.Meta.NProj))
		if err != nil {
			pool.Abort()
			return errDecorate(err, "ReadProjections")
		}
		err = rf.ReadComplex128(int64(ib), s.Projection)
		rf.Close()
		if err != nil {
			pool.Abort()
			return errDecorate(err, "ReadProjections")
		}
	}
	if err := pool.BcastComplexSlice(s.Projection, 0); err != nil {
		return errDecorate(err, "ReadProjections")
	}
	return nil
}
