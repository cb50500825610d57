/*
 * system_test.go, part of goTME.
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
	"math/cmplx"
	"testing"
)

func testGrid() *GridModel {
	g := &GridModel{
		NGlobal:    3,
		LocalCount: 3,
		GCart:      [][3]float64{{0, 0, 0}, {1, 0, 0}, {0.3, -0.4, 1.2}},
	}
	return g
}

func testMeta() *ExportMeta {
	return &ExportMeta{
		NAtoms:    1,
		NSpins:    2,
		NProj:     1,
		TypeIndex: []int{0},
		Positions: [][3]float64{{0.5, 0.25, -0.75}},
		Types:     []RawAtomType{{Element: "Si", LMMax: 1}},
	}
}

// the bra and ket phase tables must be exact complex conjugates, and the
// G=0 phase must be one regardless of the atom position
func TestPhaseTables(Te *testing.T) {
	g := testGrid()
	bra := NewCrystalSystem(RoleBra, testMeta(), g)
	ket := NewCrystalSystem(RoleKet, testMeta(), g)
	if bra.PhaseExpGR[0][0] != 1 || ket.PhaseExpGR[0][0] != 1 {
		Te.Errorf("G=0 phases: bra %v, ket %v", bra.PhaseExpGR[0][0], ket.PhaseExpGR[0][0])
	}
	for ig := 0; ig < g.LocalCount; ig++ {
		b, k := bra.PhaseExpGR[0][ig], ket.PhaseExpGR[0][ig]
		if cmplx.Abs(b-conj(k)) > 1e-15 {
			Te.Errorf("G %d: bra %v is not the conjugate of ket %v", ig, b, k)
		}
		if a := cmplx.Abs(b); a < 1-1e-14 || a > 1+1e-14 {
			Te.Errorf("G %d: |phase| = %g", ig, a)
		}
	}
}

func TestRoleConj(Te *testing.T) {
	z := 1 + 2i
	if RoleBra.Conj(z) != 1-2i {
		Te.Error("the bra role must conjugate")
	}
	if RoleKet.Conj(z) != z {
		Te.Error("the ket role must not conjugate")
	}
	if RoleBra.PhaseSign() != 1 || RoleKet.PhaseSign() != -1 {
		Te.Error("wrong phase signs")
	}
}

// spin 2 of a single-spin system reuses the loaded spin-1 data, but only
// if spin 1 was actually computed rather than skipped
func TestBandCurrentSpinLogic(Te *testing.T) {
	g := testGrid()
	meta := testMeta()
	meta.NSpins = 1
	s := NewCrystalSystem(RoleKet, meta, g)
	if s.BandCurrent(3, 1) {
		Te.Error("nothing is loaded yet")
	}
	s.markLoaded(3, 1)
	if !s.BandCurrent(3, 1) {
		Te.Error("band 3 spin 1 was just loaded")
	}
	if !s.BandCurrent(3, 2) {
		Te.Error("a single-spin system must serve spin 2 from spin-1 data")
	}
	if s.BandCurrent(4, 1) {
		Te.Error("band 4 was never loaded")
	}

	meta2 := testMeta() //two spin channels
	s2 := NewCrystalSystem(RoleKet, meta2, g)
	s2.markLoaded(3, 1)
	if s2.BandCurrent(3, 2) {
		Te.Error("a two-spin system must not serve spin 2 from spin-1 data")
	}
}

func TestFileSpinClamp(Te *testing.T) {
	g := testGrid()
	meta := testMeta()
	meta.NSpins = 1
	s := NewCrystalSystem(RoleBra, meta, g)
	if s.fileSpin(2) != 1 {
		Te.Error("a single-spin file must be opened under its only channel")
	}
	if s.fileSpin(1) != 1 {
		Te.Error("spin 1 must pass through")
	}
}

func TestIpowl(Te *testing.T) {
	for l, want := range []complex128{1, 1i, -1, -1i, 1, 1i} {
		if got := ipowl(l, 1); got != want {
			Te.Errorf("i^%d = %v, want %v", l, got, want)
		}
		if got := ipowl(l, -1); got != conj(want) {
			Te.Errorf("(-i)^%d = %v, want %v", l, got, conj(want))
		}
	}
}
