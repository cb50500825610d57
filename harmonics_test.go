/*
 * harmonics_test.go, part of goTME.
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
	"math"
	"math/cmplx"
	"testing"
)

var testDirections = [][3]float64{
	{0, 0, 1},
	{0, 0, -1},
	{1, 0, 0},
	{0, 1, 0},
	{0.5, 0.5, math.Sqrt(0.5)},
	{-0.36, 0.48, 0.8},
	{0.267261241912424, -0.534522483824849, 0.801783725737273},
}

func TestYlmClosedForms(Te *testing.T) {
	out := make([]complex128, 9)
	for _, u := range testDirections {
		ylm(2, u, out)
		y00 := complex(1/(2*math.Sqrt(math.Pi)), 0)
		if cmplx.Abs(out[lmIndex(0, 0)]-y00) > 1e-14 {
			Te.Errorf("Y00(%v) = %v", u, out[lmIndex(0, 0)])
		}
		y10 := complex(math.Sqrt(3/(4*math.Pi))*u[2], 0)
		if cmplx.Abs(out[lmIndex(1, 0)]-y10) > 1e-14 {
			Te.Errorf("Y10(%v) = %v, want %v", u, out[lmIndex(1, 0)], y10)
		}
		//Y11 = -sqrt(3/8pi) (x+iy)
		y11 := complex(-math.Sqrt(3/(8*math.Pi)), 0) * complex(u[0], u[1])
		if cmplx.Abs(out[lmIndex(1, 1)]-y11) > 1e-14 {
			Te.Errorf("Y11(%v) = %v, want %v", u, out[lmIndex(1, 1)], y11)
		}
		//Y20 = sqrt(5/16pi) (3z^2 - 1)
		y20 := complex(math.Sqrt(5/(16*math.Pi))*(3*u[2]*u[2]-1), 0)
		if cmplx.Abs(out[lmIndex(2, 0)]-y20) > 1e-13 {
			Te.Errorf("Y20(%v) = %v, want %v", u, out[lmIndex(2, 0)], y20)
		}
		//Y22 = sqrt(15/32pi) (x+iy)^2
		y22 := complex(math.Sqrt(15/(32*math.Pi)), 0) * complex(u[0], u[1]) * complex(u[0], u[1])
		if cmplx.Abs(out[lmIndex(2, 2)]-y22) > 1e-13 {
			Te.Errorf("Y22(%v) = %v, want %v", u, out[lmIndex(2, 2)], y22)
		}
		//Y21 = -sqrt(15/8pi) z (x+iy)
		y21 := complex(-math.Sqrt(15/(8*math.Pi))*u[2], 0) * complex(u[0], u[1])
		if cmplx.Abs(out[lmIndex(2, 1)]-y21) > 1e-13 {
			Te.Errorf("Y21(%v) = %v, want %v", u, out[lmIndex(2, 1)], y21)
		}
	}
}

// Y(l,-m) = (-1)^m conj(Y(l,m))
func TestYlmConjugationSymmetry(Te *testing.T) {
	out := make([]complex128, 9)
	for _, u := range testDirections {
		ylm(2, u, out)
		for l := 0; l <= 2; l++ {
			for m := 1; m <= l; m++ {
				want := conj(out[lmIndex(l, m)])
				if m%2 != 0 {
					want = -want
				}
				if cmplx.Abs(out[lmIndex(l, -m)]-want) > 1e-13 {
					Te.Errorf("Y(%d,%d)(%v) = %v, want %v", l, -m, u, out[lmIndex(l, -m)], want)
				}
			}
		}
	}
}

// sum_m |Ylm|^2 = (2l+1)/(4 pi) for every direction
func TestYlmAdditionTheorem(Te *testing.T) {
	out := make([]complex128, 9)
	for _, u := range testDirections {
		ylm(2, u, out)
		for l := 0; l <= 2; l++ {
			sum := 0.0
			for m := -l; m <= l; m++ {
				a := cmplx.Abs(out[lmIndex(l, m)])
				sum += a * a
			}
			want := float64(2*l+1) / (4 * math.Pi)
			if math.Abs(sum-want) > 1e-13 {
				Te.Errorf("l=%d at %v: sum %g, want %g", l, u, sum, want)
			}
		}
	}
}
