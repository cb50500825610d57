/*
 * context.go, part of goTME.
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
	"math"

	"github.com/rmera/gotme/cfg"
	"github.com/rmera/gotme/comm"
)

// omegaTol is the relative tolerance on the cell volumes of the two trees.
// They come from independent relaxations of the same cell, so bitwise
// equality is too strict but anything beyond roundoff means the wrong pair
// of exports was given.
const omegaTol = 1e-10

// RunContext is the fully wired per-worker state of one run: the
// communicators, both parsed Export trees, the shared grid tables and the
// two crystal systems, plus this worker's k-point assignment.
type RunContext struct {
	Conf  *cfg.Cfg
	World *comm.Comm
	Pool  *comm.Comm
	//which pool this worker belongs to, and how many there are
	PoolID int
	NPools int

	Bra, Ket *CrystalSystem
	Engine   *OverlapEngine

	NSpins int
	//this pool's contiguous block of 1-based k-points
	KFirst, KCount int
}

// NewRunContext parses both Export trees, checks that they describe the
// same cell, splits the world into pools and builds the per-worker grid
// shard and crystal systems. Every worker parses the small text inputs
// itself; only the large binary records go through root-and-scatter reads.
func NewRunContext(world *comm.Comm, conf *cfg.Cfg) (*RunContext, error) {
	braMeta, err := ReadExportMeta(conf.BraDir)
	if err != nil {
		world.Abort()
		return nil, errDecorate(err, "NewRunContext")
	}
	ketMeta, err := ReadExportMeta(conf.KetDir)
	if err != nil {
		world.Abort()
		return nil, errDecorate(err, "NewRunContext")
	}
	if err := checkCompatible(braMeta, ketMeta); err != nil {
		world.Abort()
		return nil, errDecorate(err, "NewRunContext")
	}
	//every worker parsed the files independently; a quick cross-worker
	//comparison of the header scalars catches a tree modified mid-startup.
	if err := checkAgreement(world, braMeta, ketMeta); err != nil {
		return nil, errDecorate(err, "NewRunContext")
	}

	rc := &RunContext{Conf: conf, World: world}
	rc.NPools = conf.NPools
	perPool := world.Size() / conf.NPools
	rc.PoolID = world.Rank() / perPool
	rc.Pool, err = world.Split(rc.PoolID, world.Rank()%perPool)
	if err != nil {
		return nil, errDecorate(err, "NewRunContext")
	}

	//the pseudopotential tensors come from whichever tree declares more
	//atom types; the other tree only needs to agree on elements.
	pseudoMeta, otherMeta := braMeta, ketMeta
	if ketMeta.NTypes > braMeta.NTypes {
		pseudoMeta, otherMeta = ketMeta, braMeta
	}
	pt, err := NewPseudoTable(pseudoMeta.Types)
	if err != nil {
		rc.Pool.Abort()
		return nil, errDecorate(err, "NewRunContext")
	}
	if err := pt.MatchElements(otherMeta.Types); err != nil {
		rc.Pool.Abort()
		return nil, errDecorate(err, "NewRunContext")
	}

	//the G-vector list is canonical across the two trees; read it from the
	//bra side.
	grid, err := NewGridModel(rc.Pool, conf.BraDir, braMeta.NGVecs, braMeta.RecipLattice, pt)
	if err != nil {
		rc.Pool.Abort()
		return nil, errDecorate(err, "NewRunContext")
	}

	rc.Bra = NewCrystalSystem(RoleBra, braMeta, grid)
	rc.Ket = NewCrystalSystem(RoleKet, ketMeta, grid)
	rc.Engine = &OverlapEngine{
		Pool:   rc.Pool,
		Grid:   grid,
		Pseudo: pt,
		Bra:    rc.Bra,
		Ket:    rc.Ket,
		Omega:  braMeta.Omega,
	}

	rc.NSpins = braMeta.NSpins
	if ketMeta.NSpins > rc.NSpins {
		rc.NSpins = ketMeta.NSpins
	}
	if conf.Spin > rc.NSpins {
		rc.Pool.Abort()
		return nil, Error{fmt.Sprintf("%s: spin %d requested, %d channels present", Unsupported, conf.Spin, rc.NSpins), "", []string{"NewRunContext"}, true}
	}

	//contiguous k-point blocks per pool, remainders to the low pools
	count, offset := comm.Distribute(braMeta.NKPoints, rc.NPools, rc.PoolID)
	rc.KFirst = offset + 1
	rc.KCount = count
	return rc, nil
}

// checkCompatible verifies that the two trees describe the same cell on the
// same plane-wave basis. Any mismatch is critical.
func checkCompatible(bra, ket *ExportMeta) error {
	if bra.GammaOnly || ket.GammaOnly {
		return Error{Unsupported + ": gamma-only exports (the half-sphere storage convention is not handled)", "", []string{"checkCompatible"}, true}
	}
	if bra.Noncollinear || ket.Noncollinear {
		return Error{Unsupported + ": noncollinear exports", "", []string{"checkCompatible"}, true}
	}
	if math.Abs(bra.Omega-ket.Omega) > omegaTol*math.Abs(bra.Omega) {
		return Error{fmt.Sprintf("%s: cell volumes %g and %g", Inconsistent, bra.Omega, ket.Omega), "", []string{"checkCompatible"}, true}
	}
	if bra.NGVecs != ket.NGVecs {
		return Error{fmt.Sprintf("%s: %d vs %d G-vectors", Inconsistent, bra.NGVecs, ket.NGVecs), "", []string{"checkCompatible"}, true}
	}
	if bra.NKPoints != ket.NKPoints {
		return Error{fmt.Sprintf("%s: %d vs %d k-points", Inconsistent, bra.NKPoints, ket.NKPoints), "", []string{"checkCompatible"}, true}
	}
	for ik := range bra.NPWs {
		if bra.NPWs[ik] != ket.NPWs[ik] {
			return Error{fmt.Sprintf("%s: k-point %d has %d vs %d G+k vectors", Inconsistent, ik+1, bra.NPWs[ik], ket.NPWs[ik]), "", []string{"checkCompatible"}, true}
		}
	}
	if bra.NAtoms != ket.NAtoms {
		return Error{fmt.Sprintf("%s: %d vs %d atoms", Inconsistent, bra.NAtoms, ket.NAtoms), "", []string{"checkCompatible"}, true}
	}
	if bra.NProj != ket.NProj {
		return Error{fmt.Sprintf("%s: %d vs %d projectors", Inconsistent, bra.NProj, ket.NProj), "", []string{"checkCompatible"}, true}
	}
	return nil
}

// checkAgreement compares a few header scalars across all workers against
// rank 0's values.
func checkAgreement(world *comm.Comm, bra, ket *ExportMeta) error {
	for _, v := range []struct {
		name string
		mine float64
	}{
		{"cell volume", bra.Omega},
		{"G-vector count", float64(bra.NGVecs)},
		{"k-point count", float64(bra.NKPoints)},
		{"projector count", float64(bra.NProj)},
		{"ket projector count", float64(ket.NProj)},
	} {
		ref, err := world.BcastFloat64(v.mine, 0)
		if err != nil {
			return err
		}
		if ref != v.mine {
			world.Abort()
			return Error{fmt.Sprintf("%s: %s read as %g here, %g on the first worker", Inconsistent, v.name, v.mine, ref), "", []string{"checkAgreement"}, true}
		}
	}
	return nil
}
