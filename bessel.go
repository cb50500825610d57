/*
 * bessel.go, part of goTME.
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

import "math"

// sphericalBessel fills out[l], l in [0,len(out)), with the spherical
// Bessel functions j_l(x), by the upward recursion
//
//	j_l = (2l-1)/x * j_{l-1} - j_{l-2}
//
// seeded from j_0 = sin(x)/x and j_1 = (j_0 - cos(x))/x. For x <= 0 the
// degenerate values are j_0 = 1 and 0 for every higher order. The upward
// recursion loses accuracy for x much smaller than l; with l capped at d
// orbitals this mirrors what the reference pseudopotential codes do.
func sphericalBessel(x float64, out []float64) {
	if len(out) == 0 {
		return
	}
	if x <= 0 {
		out[0] = 1
		for i := 1; i < len(out); i++ {
			out[i] = 0
		}
		return
	}
	out[0] = math.Sin(x) / x
	if len(out) == 1 {
		return
	}
	out[1] = (out[0] - math.Cos(x)) / x
	for l := 2; l < len(out); l++ {
		out[l] = float64(2*l-1)/x*out[l-1] - out[l-2]
	}
}
