/*
 * doc.go, part of goTME.
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

/*Package tme computes all-electron transition matrix elements between the
electronic wavefunctions of two plane-wave DFT calculations, the "bra" and
the "ket" systems (for instance, a defect crystal before and after carrier
capture). For every k-point, spin channel and band pair it reconstructs

	U_fi = <psi_f|psi_i>

from the pseudo-wavefunctions plus the two PAW one-center corrections, and
writes the results to one text file per (k-point, spin).


	**goTME capabilities**

    Reads the plane-wave Export format (input, mgrid, wfc.*, projectors.*,
	projections.*) produced by the companion export tools.

    Computes overlap-only matrix elements for explicit band pairs or band
	ranges, and capture matrix elements (zeroth and first order in the
	phonon coordinate) driven by an external energy table.

    Distributes k-points over pools of cooperating workers and G-vectors
	within each pool, with deterministic reductions, so a run with a fixed
	worker count is reproducible to the last bit.

    Resumes interrupted runs at (k-point, spin) granularity. A complete
	output file is the only checkpoint marker.

    Subtracts a baseline overlap (for finite-difference derivatives) and
	normalizes by the phonon generalized-coordinate displacement.

The library does not parse WAVECAR/POTCAR files itself, and it does not
support spin spirals, non-collinear spin, Gamma-only plane-wave sets, nor
angular momenta beyond d orbitals in the coupling path. Such inputs are
rejected, not silently mishandled.

The main user-level entry points are in the cmd directory: gotme runs the
engine from a YAML input, meplot plots the resulting matrix elements.
*/
package tme
