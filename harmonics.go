/*
 * harmonics.go, part of goTME.
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
)

//Complex spherical harmonics in the Condon-Shortley convention, on the flat
//(l,m) index l*(l+1)+m. l=0 and l=1 use the closed forms; higher l comes
//from the standard associated-Legendre recursion in l, which is stable
//upward. The direction must be a unit vector.

// lmIndex returns the flat index of (l,m), m in [-l,l].
func lmIndex(l, m int) int { return l*(l+1) + m }

// ylm fills out, which must have (lmax+1)^2 elements, with Y_lm(u) for all
// l in [0,lmax]. The angles are derived from the unit vector u by max-abs
// normalization so no near-zero division can blow up: cos(theta) is read
// directly and the azimuth comes from the in-plane components only when
// their magnitude is meaningful, otherwise the azimuth is set to zero
// (every m!=0 harmonic vanishes there anyway as sin(theta)->0).
func ylm(lmax int, u [3]float64, out []complex128) {
	if len(out) < (lmax+1)*(lmax+1) {
		panic(ErrLOutOfRange)
	}
	cosT := u[2]
	if cosT > 1 {
		cosT = 1
	} else if cosT < -1 {
		cosT = -1
	}
	sinT := math.Hypot(u[0], u[1])
	var cosP, sinP float64
	if m := math.Max(math.Abs(u[0]), math.Abs(u[1])); m > 1e-12 {
		//normalize by the larger component first; robust for tiny sinT
		a, b := u[0]/m, u[1]/m
		h := math.Hypot(a, b)
		cosP, sinP = a/h, b/h
	} else {
		cosP, sinP = 1, 0
	}
	eiphi := complex(cosP, sinP)

	out[lmIndex(0, 0)] = complex(1/(2*math.Sqrt(math.Pi)), 0)
	if lmax == 0 {
		return
	}
	out[lmIndex(1, 0)] = complex(math.Sqrt(3/(4*math.Pi))*cosT, 0)
	y11 := complex(-math.Sqrt(3/(8*math.Pi))*sinT, 0) * eiphi
	out[lmIndex(1, 1)] = y11
	out[lmIndex(1, -1)] = -conj(y11) //(-1)^1 conj(Y_11)
	if lmax == 1 {
		return
	}
	//associated Legendre P_lm with the Condon-Shortley phase, m >= 0:
	//  P_mm     = (-1)^m (2m-1)!! sinT^m
	//  P_m+1,m  = (2m+1) cosT P_mm
	//  P_lm     = ((2l-1) cosT P_l-1,m - (l+m-1) P_l-2,m) / (l-m)
	p := make([][]float64, lmax+1)
	for l := range p {
		p[l] = make([]float64, l+1)
	}
	p[0][0] = 1
	for m := 1; m <= lmax; m++ {
		p[m][m] = -float64(2*m-1) * sinT * p[m-1][m-1]
	}
	for m := 0; m < lmax; m++ {
		p[m+1][m] = float64(2*m+1) * cosT * p[m][m]
	}
	for m := 0; m <= lmax; m++ {
		for l := m + 2; l <= lmax; l++ {
			p[l][m] = (float64(2*l-1)*cosT*p[l-1][m] - float64(l+m-1)*p[l-2][m]) / float64(l-m)
		}
	}
	eimphi := complex(1, 0)
	for m := 0; m <= lmax; m++ {
		if m > 0 {
			eimphi *= eiphi
		}
		for l := max(m, 2); l <= lmax; l++ {
			norm := math.Sqrt(float64(2*l+1) / (4 * math.Pi) * factRatio(l-m, l+m))
			y := complex(norm*p[l][m], 0) * eimphi
			out[lmIndex(l, m)] = y
			if m > 0 {
				s := 1.0
				if m%2 != 0 {
					s = -1
				}
				out[lmIndex(l, -m)] = complex(s, 0) * conj(y)
			}
		}
	}
}

// factRatio returns a!/b! for a <= b without overflowing intermediates.
func factRatio(a, b int) float64 {
	r := 1.0
	for i := a + 1; i <= b; i++ {
		r /= float64(i)
	}
	return r
}

func conj(z complex128) complex128 { return complex(real(z), -imag(z)) }
