/*
 * overlap.go, part of goTME.
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
	"math"

	"github.com/rmera/gotme/comm"
	"gonum.org/v1/gonum/floats"
)

// OverlapEngine computes, for one k-point and spin, the all-electron
// overlap U_fi between a band of the bra system and a band of the ket
// system:
//
//	U_fi = <wfc_bra|wfc_ket>                        (smooth part)
//	     + (16 pi^2/Omega) sum_G conj(pawK_bra) pawK_ket
//	     + pawWfc_bra + pawWfc_ket                  (one-center parts)
//
// The order of operations matters: each side's cross-projection and pawK
// must be complete, including their in-pool reductions, before the final
// sum, which is reduced over the pool exactly once.
type OverlapEngine struct {
	Pool   *comm.Comm
	Grid   *GridModel
	Pseudo *PseudoTable
	Bra    *CrystalSystem
	Ket    *CrystalSystem
	Omega  float64
}

// BandPairOverlap returns U_fi for bra band ibBra and ket band ibKet of
// k-point ik and spin isp (all 1-based). A side whose buffers already hold
// the requested band (see CrystalSystem.BandCurrent) is not recomputed;
// that is what makes the initial-band sweep of capture mode and the
// single-spin shortcut cheap.
func (e *OverlapEngine) BandPairOverlap(ik, isp, ibBra, ibKet int) (complex128, error) {
	if e.Bra == nil || e.Ket == nil {
		panic(ErrNilSystem)
	}
	if !e.Bra.BandCurrent(ibBra, isp) {
		if err := e.prepareSide(e.Bra, e.Ket, ik, isp, ibBra); err != nil {
			return 0, errDecorate(err, "BandPairOverlap: bra")
		}
	}
	if !e.Ket.BandCurrent(ibKet, isp) {
		if err := e.prepareSide(e.Ket, e.Bra, ik, isp, ibKet); err != nil {
			return 0, errDecorate(err, "BandPairOverlap: ket")
		}
	}
	//local smooth overlap over this rank's G+k block
	local := dotc(e.Bra.Wfc, e.Ket.Wfc)
	//local reciprocal-space PAW correction over this rank's G block
	paw := dotc(e.Bra.PawK, e.Ket.PawK)
	local += complex(16*math.Pi*math.Pi/e.Omega, 0) * paw
	//the one-center wavefunction corrections are computed on the pool root
	//from the already-reduced projection vectors, broadcast for reuse, and
	//folded into the root's local sum only, so the single reduction below
	//does not multiply them by the pool size.
	if err := e.pawWfcCorrections(); err != nil {
		return 0, errDecorate(err, "BandPairOverlap")
	}
	if e.Pool.Root() {
		local += e.Bra.PawWfc + e.Ket.PawWfc
	}
	ufi, err := e.Pool.AllReduceComplex(local)
	if err != nil {
		return 0, errDecorate(err, "BandPairOverlap")
	}
	return ufi, nil
}

// prepareSide loads band ib of system s and refreshes everything derived
// from it: the cross-projection of s's wavefunction on the OTHER system's
// projectors (stored in other, whose projectors it belongs to), s's own
// stored projections, and s's reciprocal-space correction pawK.
func (e *OverlapEngine) prepareSide(s, other *CrystalSystem, ik, isp, ib int) error {
	if err := s.ReadWfc(e.Pool, ik, isp, ib); err != nil {
		return err
	}
	//crossProjection[p] = sum_G conj(beta_other[G,p]) wfc_s[G]
	for p := range other.CrossProjection {
		var acc complex128
		for ig := 0; ig < s.NGkLocal; ig++ {
			acc += conj(other.Beta[ig][p]) * s.Wfc[ig]
		}
		other.CrossProjection[p] = acc
	}
	if err := e.Pool.AllReduceComplexSlice(other.CrossProjection); err != nil {
		return err
	}
	if err := s.ReadProjections(e.Pool, ik, isp, ib); err != nil {
		return err
	}
	e.pawK(s)
	s.markLoaded(ib, isp)
	return nil
}

// pawK accumulates the reciprocal-space one-center correction of system s
// over its local G shard:
//
//	pawK[G] += exp(sign i G.R) Y*_lm(G) i^l sign^l FI_l(G) proj*
//
// with the conjugations applied on the bra side only and the sign folded
// into the i^l factor. Purely local; the reduction happens with the final
// overlap sum.
func (e *OverlapEngine) pawK(s *CrystalSystem) {
	for ig := range s.PawK {
		s.PawK[ig] = 0
	}
	sign := s.Role.PhaseSign()
	for ia := 0; ia < s.Meta.NAtoms; ia++ {
		at := &e.Pseudo.Types[s.Meta.TypeIndex[ia]]
		fi := e.Grid.FI[s.Meta.TypeIndex[ia]]
		phase := s.PhaseExpGR[ia]
		pidx := projBase(s.Meta, ia)
		for c := 0; c < at.NChannels; c++ {
			l := at.L[c]
			il := ipowl(l, sign)
			for m := -l; m <= l; m++ {
				pr := s.Role.Conj(s.Projection[pidx])
				ylmRow := e.Grid.Ylm[lmIndex(l, m)]
				for ig := range s.PawK {
					y := s.Role.Conj(ylmRow[ig])
					s.PawK[ig] += phase[ig] * y * il * complex(fi[c][ig], 0) * pr
				}
				pidx++
			}
		}
	}
}

// pawWfcCorrections computes both systems' one-center wavefunction
// corrections for the currently loaded pair on the pool root and
// broadcasts them. Only channel pairs diagonal in (l,m) survive: the
// off-diagonal radial integrals vanish by construction.
//
// On the bra side the conjugated factor is the system's own projection and
// the plain factor the cross-projection (which carries the ket
// wavefunction); on the ket side it is the other way around, and the two
// radial tensors differ accordingly (F1Bra vs F1Ket).
func (e *OverlapEngine) pawWfcCorrections() error {
	if e.Pool.Root() {
		e.Bra.PawWfc = e.oneCenter(e.Bra)
		e.Ket.PawWfc = e.oneCenter(e.Ket)
	}
	var err error
	if e.Bra.PawWfc, err = e.Pool.BcastComplex(e.Bra.PawWfc, 0); err != nil {
		return err
	}
	if e.Ket.PawWfc, err = e.Pool.BcastComplex(e.Ket.PawWfc, 0); err != nil {
		return err
	}
	return nil
}

func (e *OverlapEngine) oneCenter(s *CrystalSystem) complex128 {
	var acc complex128
	for ia := 0; ia < s.Meta.NAtoms; ia++ {
		at := &e.Pseudo.Types[s.Meta.TypeIndex[ia]]
		base := projBase(s.Meta, ia)
		joff := 0
		for j := 0; j < at.NChannels; j++ {
			coff := 0
			for c := 0; c < at.NChannels; c++ {
				if at.L[j] == at.L[c] {
					l := at.L[j]
					//both tensors are indexed [plain channel][conjugated
					//channel]; for the bra the conjugated factor is the own
					//projection (c), for the ket the cross-projection (j).
					var rad float64
					if s.Role == RoleBra {
						rad = floats.Sum(at.F1Bra[j][c])
					} else {
						rad = floats.Sum(at.F1Ket[c][j])
					}
					for m := 0; m < 2*l+1; m++ {
						jp := base + joff + m
						cp := base + coff + m
						if s.Role == RoleBra {
							acc += conj(s.Projection[cp]) * complex(rad, 0) * s.CrossProjection[jp]
						} else {
							acc += conj(s.CrossProjection[jp]) * complex(rad, 0) * s.Projection[cp]
						}
					}
				}
				coff += 2*at.L[c] + 1
			}
			joff += 2*at.L[j] + 1
		}
	}
	return acc
}

// projBase returns the index of atom ia's first projector in the aggregate
// projector order: atoms in metadata order, channels in pseudopotential
// order, m from -l to l. This order is the contract with the export stage.
func projBase(meta *ExportMeta, ia int) int {
	//atom counts are small; recomputing beats caching a table per system
	base := 0
	for i := 0; i < ia; i++ {
		base += rawLMMax(meta, i)
	}
	return base
}

func rawLMMax(meta *ExportMeta, ia int) int {
	return meta.Types[meta.TypeIndex[ia]].LMMax
}

// ipowl returns i^l with the role sign folded in: for l mod 4 = 0,1,2,3 the
// values are 1, i*sign, -1, -i*sign.
func ipowl(l int, sign float64) complex128 {
	switch l % 4 {
	case 0:
		return 1
	case 1:
		return complex(0, sign)
	case 2:
		return -1
	default:
		return complex(0, -sign)
	}
}

// dotc returns sum_i conj(a[i])*b[i]. gonum's cmplxs.Dot does not conjugate,
// so this three-liner stays.
func dotc(a, b []complex128) complex128 {
	var acc complex128
	for i, v := range a {
		acc += conj(v) * b[i]
	}
	return acc
}
