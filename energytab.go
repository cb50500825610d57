/*
 * energytab.go, part of goTME.
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
	"path/filepath"
)

// EnergyTable holds the eigenvalue differences for the capture transitions
// of one (k-point, spin): DE[i] belongs to initial band IbiFirst+i.
type EnergyTable struct {
	IbiFirst, IbiLast, Ibf int
	DE                     []float64
}

// ReadEnergyTable reads energyTable.<isp>.<ik> from dir. The file carries
// a transition count, the initial-band bounds and the final band, then one
// "band dE" row per transition.
func ReadEnergyTable(dir string, ik, isp int) (*EnergyTable, error) {
	path := filepath.Join(dir, fmt.Sprintf("energyTable.%d.%d", isp, ik))
	fin, err := openText(path)
	if err != nil {
		return nil, errDecorate(err, "ReadEnergyTable")
	}
	defer fin.Close()
	t := newTokens(fin, path)
	n, err := t.Int()
	if err != nil {
		return nil, errDecorate(err, "ReadEnergyTable")
	}
	e := &EnergyTable{}
	if e.IbiFirst, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadEnergyTable")
	}
	if e.IbiLast, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadEnergyTable")
	}
	if e.Ibf, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadEnergyTable")
	}
	if n != e.IbiLast-e.IbiFirst+1 {
		return nil, Error{fmt.Sprintf("%s: %d transitions declared for bands %d..%d", BadEnergyTable, n, e.IbiFirst, e.IbiLast), path, []string{"ReadEnergyTable"}, true}
	}
	e.DE = make([]float64, n)
	for i := 0; i < n; i++ {
		ib, err := t.Int()
		if err != nil {
			return nil, errDecorate(err, "ReadEnergyTable")
		}
		if ib != e.IbiFirst+i {
			return nil, Error{fmt.Sprintf("%s: band %d where %d was expected", BadEnergyTable, ib, e.IbiFirst+i), path, []string{"ReadEnergyTable"}, true}
		}
		if e.DE[i], err = t.Float(); err != nil {
			return nil, errDecorate(err, "ReadEnergyTable")
		}
	}
	return e, nil
}

// Lookup returns the energy difference for initial band ibi.
func (e *EnergyTable) Lookup(ibi int) (float64, error) {
	if ibi < e.IbiFirst || ibi > e.IbiLast {
		return 0, Error{fmt.Sprintf("%s: band %d outside %d..%d", BadEnergyTable, ibi, e.IbiFirst, e.IbiLast), "", []string{"EnergyTable.Lookup"}, true}
	}
	return e.DE[ibi-e.IbiFirst], nil
}

// ReadDq reads the displacement magnitude of one phonon mode from a dq
// file: a comment header followed by one value per line, line j (1-based)
// belonging to mode j.
func ReadDq(path string, mode int) (float64, error) {
	if mode < 1 {
		return 0, Error{fmt.Sprintf("%s: phonon mode %d", WrongFormat, mode), path, []string{"ReadDq"}, true}
	}
	fin, err := openText(path)
	if err != nil {
		return 0, errDecorate(err, "ReadDq")
	}
	defer fin.Close()
	t := newTokens(fin, path)
	var dq float64
	for j := 1; j <= mode; j++ {
		if dq, err = t.Float(); err != nil {
			return 0, errDecorate(err, "ReadDq")
		}
	}
	return dq, nil
}
