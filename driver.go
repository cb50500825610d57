/*
 * driver.go, part of goTME.
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
	"log"
	"os"

	"github.com/rmera/gotme/cfg"
	"github.com/rmera/gotme/comm"
	"gonum.org/v1/gonum/cmplxs"
)

// Run executes a whole calculation with conf.NProcs workers split into
// conf.NPools pools, each pool owning a contiguous block of k-points. A
// (k-point, spin) whose output file already exists is skipped, which is the
// entire restart mechanism: delete the file to recompute it.
func Run(conf *cfg.Cfg) error {
	return comm.Run(conf.NProcs, func(world *comm.Comm) error {
		rc, err := NewRunContext(world, conf)
		if err != nil {
			return err
		}
		return rc.run()
	})
}

// run drives this worker's k-point block. Any failure aborts the pool
// before unwinding: comm.Run only aborts the world group, which would leave
// pool mates already blocked in the next k-point's collectives waiting
// forever.
func (rc *RunContext) run() error {
	if err := rc.allK(); err != nil {
		rc.Pool.Abort()
		return err
	}
	return rc.World.Barrier()
}

func (rc *RunContext) allK() error {
	var dq float64
	var err error
	if rc.Conf.Capture() && rc.Conf.Order == 1 {
		if dq, err = ReadDq(rc.Conf.DqFile, rc.Conf.PhononMode); err != nil {
			return errDecorate(err, "Run")
		}
	}
	for ik := rc.KFirst; ik < rc.KFirst+rc.KCount; ik++ {
		if err := rc.runK(ik, dq); err != nil {
			return errDecorate(err, fmt.Sprintf("Run: k-point %d", ik))
		}
	}
	return nil
}

// spins returns the 1-based spin channels this run covers.
func (rc *RunContext) spins() []int {
	if rc.Conf.Spin != 0 {
		return []int{rc.Conf.Spin}
	}
	s := make([]int, rc.NSpins)
	for i := range s {
		s[i] = i + 1
	}
	return s
}

func (rc *RunContext) runK(ik int, dq float64) error {
	//the pool root decides what is already done; everyone follows it so
	//the skip is collective even if another job races on the same output.
	todo := make([]int, 0, rc.NSpins)
	for _, isp := range rc.spins() {
		done := false
		if rc.Pool.Root() {
			_, err := os.Stat(ResultPath(rc.Conf.OutputDir, ik, isp))
			done = err == nil
		}
		done, err := rc.Pool.BcastBool(done, 0)
		if err != nil {
			return err
		}
		if done {
			if rc.Pool.Root() {
				log.Printf("k-point %d spin %d: output present, skipping", ik, isp)
			}
			continue
		}
		todo = append(todo, isp)
	}
	if len(todo) == 0 {
		return nil
	}

	nGk := rc.Bra.Meta.NPWs[ik-1]
	count, offset := comm.Distribute(nGk, rc.Pool.Size(), rc.Pool.Rank())
	rc.Bra.AllocateK(rc.Engine.Grid, count, offset)
	rc.Ket.AllocateK(rc.Engine.Grid, count, offset)
	defer rc.Bra.FreeK()
	defer rc.Ket.FreeK()
	if err := rc.Bra.ReadProjectors(ik); err != nil {
		return err
	}
	if err := rc.Ket.ReadProjectors(ik); err != nil {
		return err
	}

	for _, isp := range todo {
		var err error
		if rc.Conf.Capture() {
			err = rc.captureBlock(ik, isp, dq)
		} else {
			err = rc.overlapBlock(ik, isp)
		}
		if err != nil {
			return err
		}
		if rc.Pool.Root() {
			log.Printf("k-point %d spin %d: done", ik, isp)
		}
	}
	return nil
}

// overlapBlock computes every configured bra/ket band pair of one
// (k-point, spin) and writes its record. The range expansion keeps the bra
// band outermost so each bra wavefunction is prepared once per sweep of ket
// bands; an explicit pair list is taken in its given order.
func (rc *RunContext) overlapBlock(ik, isp int) error {
	c := rc.Conf
	sel, err := c.Pairs()
	if err != nil {
		return errDecorate(err, "overlapBlock")
	}
	var pairs []PairResult
	for _, p := range sel {
		u, err := rc.Engine.BandPairOverlap(ik, isp, p[0], p[1])
		if err != nil {
			return err
		}
		if rc.Pool.Root() {
			pairs = append(pairs, PairResult{IbBra: p[0], IbKet: p[1], U: u})
		}
	}
	if !rc.Pool.Root() {
		return nil
	}
	r := &Record{
		NKPoints: rc.Bra.Meta.NKPoints,
		IK:       ik,
		ISpin:    isp,
		Omega:    rc.Engine.Omega,
		Pairs:    pairs,
	}
	return WriteRecord(c.OutputDir, r)
}

// captureBlock computes the transitions from every initial ket band to the
// single final bra band of one (k-point, spin), applies the order-dependent
// scaling and writes the record. The final band is prepared once; the sweep
// reloads only the ket side.
func (rc *RunContext) captureBlock(ik, isp int, dq float64) error {
	c := rc.Conf
	n := c.IbiLast - c.IbiFirst + 1
	u := make([]complex128, n)
	for i := 0; i < n; i++ {
		v, err := rc.Engine.BandPairOverlap(ik, isp, c.Ibf, c.IbiFirst+i)
		if err != nil {
			return err
		}
		u[i] = v
	}
	if !rc.Pool.Root() {
		return nil
	}
	//post-processing is root-only; the energy tables and the baseline are
	//small text files the other workers never need.
	var et *EnergyTable
	if c.Order == 0 || c.WeightFirstOrder {
		var err error
		if et, err = ReadEnergyTable(c.EnergyTableDir, ik, isp); err != nil {
			return errDecorate(err, "captureBlock")
		}
		if et.IbiFirst > c.IbiFirst || et.IbiLast < c.IbiLast || et.Ibf != c.Ibf {
			return Error{fmt.Sprintf("%s: table covers %d..%d -> %d, run needs %d..%d -> %d", BadEnergyTable,
				et.IbiFirst, et.IbiLast, et.Ibf, c.IbiFirst, c.IbiLast, c.Ibf), "", []string{"captureBlock"}, true}
		}
	}
	if c.Order == 1 {
		//the baseline subtraction is optional: without it the finite
		//difference is taken against zero
		if c.BaselineDir != "" {
			u0, err := rc.baseline(ik, isp, n)
			if err != nil {
				return errDecorate(err, "captureBlock")
			}
			cmplxs.Sub(u, u0)
		}
		for i := range u {
			u[i] /= complex(dq, 0)
		}
	}
	r := &Record{
		NKPoints:   rc.Bra.Meta.NKPoints,
		IK:         ik,
		ISpin:      isp,
		Omega:      rc.Engine.Omega,
		Capture:    true,
		IbiFirst:   c.IbiFirst,
		IbiLast:    c.IbiLast,
		Ibf:        c.Ibf,
		Order:      c.Order,
		PhononMode: c.PhononMode,
		Dq:         dq,
	}
	r.Transitions = make([]TransitionResult, n)
	for i := 0; i < n; i++ {
		tr := TransitionResult{Ibi: c.IbiFirst + i, U: u[i]}
		tr.Scaled = real(u[i])*real(u[i]) + imag(u[i])*imag(u[i])
		if et != nil {
			de, err := et.Lookup(tr.Ibi)
			if err != nil {
				return err
			}
			tr.Scaled *= de * de
		}
		r.Transitions[i] = tr
	}
	return WriteRecord(c.OutputDir, r)
}

// baseline reads the unperturbed overlaps that an order-1 run subtracts
// before dividing by the displacement.
func (rc *RunContext) baseline(ik, isp, n int) ([]complex128, error) {
	c := rc.Conf
	rec, err := ReadRecord(ResultPath(c.BaselineDir, ik, isp), ReadOptions{
		BandLo: c.IbiFirst, BandHi: c.IbiLast,
	})
	if err != nil {
		return nil, err
	}
	if !rec.Capture || len(rec.Transitions) != n {
		return nil, Error{fmt.Sprintf("%s: baseline record for k-point %d spin %d does not cover bands %d..%d", Inconsistent, ik, isp, c.IbiFirst, c.IbiLast), "", []string{"baseline"}, true}
	}
	u0 := make([]complex128, n)
	for i, t := range rec.Transitions {
		if t.Ibi != c.IbiFirst+i {
			return nil, Error{fmt.Sprintf("%s: baseline bands out of order", Inconsistent), "", []string{"baseline"}, true}
		}
		u0[i] = t.U
	}
	return u0, nil
}
