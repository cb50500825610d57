/*
 * grid.go, part of goTME.
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

	"github.com/rmera/gotme/comm"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// degenerateDirNorm is the |G| under which a G-vector direction is treated
// as degenerate and mapped to the z axis.
const degenerateDirNorm = 1e-6

// GridModel holds one worker's shard of the global G-vector set together
// with everything derived from it: Cartesian vectors, spherical harmonics
// and the per-(atom type, channel) radial form factors. The global order of
// G-vectors is whatever the export stage wrote; it is consistent between
// the bra and ket trees by construction and the engine trusts it.
type GridModel struct {
	NGlobal     int
	LocalCount  int
	LocalOffset int
	Miller      [][3]int     //local shard
	GCart       [][3]float64 //local, a.u.
	GNorm       []float64
	Ylm         [][]complex128 //[(l,m) flat index][local G]
	FI          [][][]float64  //[atom type][channel][local G]
	lmax        int
}

// NewGridModel reads the canonical G-vector list of the Export directory
// dir, keeps the block owned by this pool rank, and tabulates harmonics and
// form factors for it. The global count must match nGExpected, the value
// declared by the metadata of both systems.
func NewGridModel(pool *comm.Comm, dir string, nGExpected int, recip *mat.Dense, pt *PseudoTable) (*GridModel, error) {
	count, offset := comm.Distribute(nGExpected, pool.Size(), pool.Rank())
	nGlobal, miller, err := ReadMGridShard(dir, count, offset)
	if err != nil {
		return nil, errDecorate(err, "NewGridModel")
	}
	if nGlobal != nGExpected {
		return nil, Error{fmt.Sprintf("%s: mgrid holds %d G-vectors, the metadata %d", Inconsistent, nGlobal, nGExpected), dir, []string{"NewGridModel"}, true}
	}
	g := &GridModel{
		NGlobal:     nGlobal,
		LocalCount:  count,
		LocalOffset: offset,
		Miller:      miller,
		lmax:        pt.MaxL(),
	}
	g.cartesian(recip)
	g.buildYlm()
	g.buildFI(pt)
	return g, nil
}

// cartesian computes G = M·B for the local shard, with B the matrix whose
// rows are the reciprocal lattice vectors.
func (g *GridModel) cartesian(recip *mat.Dense) {
	g.GCart = make([][3]float64, g.LocalCount)
	g.GNorm = make([]float64, g.LocalCount)
	gv := mat.NewVecDense(3, nil)
	mv := mat.NewVecDense(3, nil)
	for i, m := range g.Miller {
		mv.SetVec(0, float64(m[0]))
		mv.SetVec(1, float64(m[1]))
		mv.SetVec(2, float64(m[2]))
		gv.MulVec(recip.T(), mv)
		g.GCart[i] = [3]float64{gv.AtVec(0), gv.AtVec(1), gv.AtVec(2)}
		g.GNorm[i] = mat.Norm(gv, 2)
	}
}

// buildYlm tabulates Y_lm for every local G direction up to the largest
// angular momentum of the pseudopotentials.
func (g *GridModel) buildYlm() {
	nlm := (g.lmax + 1) * (g.lmax + 1)
	g.Ylm = make([][]complex128, nlm)
	for i := range g.Ylm {
		g.Ylm[i] = make([]complex128, g.LocalCount)
	}
	buf := make([]complex128, nlm)
	for ig := 0; ig < g.LocalCount; ig++ {
		u := [3]float64{0, 0, 1}
		if g.GNorm[ig] >= degenerateDirNorm {
			u[0] = g.GCart[ig][0] / g.GNorm[ig]
			u[1] = g.GCart[ig][1] / g.GNorm[ig]
			u[2] = g.GCart[ig][2] / g.GNorm[ig]
		}
		ylm(g.lmax, u, buf)
		for ilm := 0; ilm < nlm; ilm++ {
			g.Ylm[ilm][ig] = buf[ilm]
		}
	}
}

// buildFI tabulates, per atom type and channel,
//
//	FI[l][G] = sum_ir j_l(|G| r_ir) F[ir,l]
//
// shared by every atom of the type.
func (g *GridModel) buildFI(pt *PseudoTable) {
	g.FI = make([][][]float64, len(pt.Types))
	jl := make([]float64, g.lmax+1)
	for it := range pt.Types {
		at := &pt.Types[it]
		g.FI[it] = make([][]float64, at.NChannels)
		for c := range g.FI[it] {
			g.FI[it][c] = make([]float64, g.LocalCount)
		}
		//bessel values depend on (G, r) only, so fill channel by channel
		//from a per-l table rather than recomputing per channel
		jtab := make([][]float64, g.lmax+1)
		for l := range jtab {
			jtab[l] = make([]float64, at.IRAugMax)
		}
		for ig := 0; ig < g.LocalCount; ig++ {
			for ir := 0; ir < at.IRAugMax; ir++ {
				sphericalBessel(g.GNorm[ig]*at.RadGrid[ir], jl)
				for l := 0; l <= g.lmax; l++ {
					jtab[l][ir] = jl[l]
				}
			}
			for c := 0; c < at.NChannels; c++ {
				g.FI[it][c][ig] = floats.Dot(jtab[at.L[c]], at.F[c])
			}
		}
	}
}

// MaxL returns the largest tabulated angular momentum.
func (g *GridModel) MaxL() int { return g.lmax }
