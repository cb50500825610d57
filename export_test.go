/*
 * export_test.go, part of goTME.
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
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

//A synthetic one-atom, single-spin Export tree, small enough to check by
//hand: a handful of G-vectors, one s projector, up to two bands. With
//pawActive false the AE and PS partial waves coincide, every radial tensor
//vanishes and the all-electron overlap reduces to the plane-wave dot
//product. All k-points of a multi-k tree share the same coefficients.

const (
	testOmega = 100.0
	testNG    = 6
)

var testMiller = [][3]int{{0, 0, 0}, {1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}}

type testTree struct {
	pawActive bool
	nk        int           //k-points, 0 meaning 1
	extraType bool          //declare a second atom type no atom uses
	miller    [][3]int      //G list, nil meaning testMiller
	bands     [][]complex64 //wfc per band, one coefficient per G vector
	proj      []complex128  //stored projection per band (one projector)
	beta      []complex128  //projector at each G+k vector
}

// orthonormal two-band tree; the beta and projections only matter when
// pawActive is set.
func defaultTree(pawActive bool) *testTree {
	return &testTree{
		pawActive: pawActive,
		bands: [][]complex64{
			{1, 0, 0, 0, 0, 0},
			{0, 1, 0, 0, 0, 0},
		},
		proj: []complex128{0.3, 0.7},
		beta: []complex128{0.1, 0.2, 0.2, 0.1, 0.1, 0.3},
	}
}

func writeTestTree(Te *testing.T, dir string, tr *testTree) {
	Te.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		Te.Fatal(err)
	}
	nk := tr.nk
	if nk == 0 {
		nk = 1
	}
	miller := tr.miller
	if miller == nil {
		miller = testMiller
	}
	nG := len(miller)
	ntypes := 1
	if tr.extraType {
		ntypes = 2
	}
	ps := []float64{0.1, 0.2, 0.3, 0.4}
	ae := ps
	if tr.pawActive {
		ae = []float64{0.2, 0.4, 0.5, 0.4}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# synthetic export for the tests\n")
	fmt.Fprintf(&b, "%g\n%d\n8 8 8\n1\n%d\n", testOmega, nG, nk)
	for ik := 0; ik < nk; ik++ {
		fmt.Fprintf(&b, "%d ", nG)
	}
	fmt.Fprintf(&b, "\nF\nF\n")
	fmt.Fprintf(&b, "1 0 0  0 1 0  0 0 1\n")
	fmt.Fprintf(&b, "1\n%d\n1 0.1 0.2 0.3\n1\n", ntypes)
	fmt.Fprintf(&b, "Si\n1\n0\n4\n3\n")
	fmt.Fprintf(&b, "0.25 0.5 0.75 1.0\n0.25 0.25 0.25 0.25\n")
	for _, v := range ae {
		fmt.Fprintf(&b, "%g ", v)
	}
	fmt.Fprintf(&b, "\n")
	for _, v := range ps {
		fmt.Fprintf(&b, "%g ", v)
	}
	fmt.Fprintf(&b, "\n")
	if tr.extraType {
		fmt.Fprintf(&b, "C\n1\n0\n4\n3\n")
		fmt.Fprintf(&b, "0.25 0.5 0.75 1.0\n0.25 0.25 0.25 0.25\n")
		fmt.Fprintf(&b, "0.1 0.2 0.3 0.4\n0.1 0.2 0.3 0.4\n")
	}
	if err := os.WriteFile(filepath.Join(dir, "input"), []byte(b.String()), 0644); err != nil {
		Te.Fatal(err)
	}

	b.Reset()
	fmt.Fprintf(&b, "%d\n", nG)
	for i, m := range miller {
		fmt.Fprintf(&b, "%d %d %d %d\n", i+1, m[0], m[1], m[2])
	}
	if err := os.WriteFile(filepath.Join(dir, "mgrid"), []byte(b.String()), 0644); err != nil {
		Te.Fatal(err)
	}

	for ik := 1; ik <= nk; ik++ {
		//projectors.<k>: record 1 reserved, then one record per G+k vector
		recs := make([]complex128, 0, nG+1)
		recs = append(recs, 0)
		recs = append(recs, tr.beta...)
		writeBin(Te, filepath.Join(dir, fmt.Sprintf("projectors.%d", ik)), recs)

		//wfc.1.<k>: one single-precision record per band
		wf, err := os.Create(filepath.Join(dir, fmt.Sprintf("wfc.1.%d", ik)))
		if err != nil {
			Te.Fatal(err)
		}
		for _, band := range tr.bands {
			if err := binary.Write(wf, binary.LittleEndian, band); err != nil {
				Te.Fatal(err)
			}
		}
		wf.Close()

		//projections.1.<k>: one record per band
		writeBin(Te, filepath.Join(dir, fmt.Sprintf("projections.1.%d", ik)), tr.proj)
	}
}

func writeBin(Te *testing.T, path string, data []complex128) {
	Te.Helper()
	f, err := os.Create(path)
	if err != nil {
		Te.Fatal(err)
	}
	if err := binary.Write(f, binary.LittleEndian, data); err != nil {
		Te.Fatal(err)
	}
	f.Close()
}

func TestReadExportMeta(Te *testing.T) {
	dir := Te.TempDir()
	writeTestTree(Te, dir, defaultTree(false))
	m, err := ReadExportMeta(dir)
	if err != nil {
		Te.Fatal(err)
	}
	if m.Omega != testOmega || m.NGVecs != testNG || m.NKPoints != 1 || m.NSpins != 1 {
		Te.Errorf("header misread: %+v", m)
	}
	if m.NAtoms != 1 || m.NProj != 1 || len(m.Types) != 1 {
		Te.Errorf("atoms misread: %+v", m)
	}
	at := m.Types[0]
	if at.Element != "Si" || at.NChannels != 1 || at.L[0] != 0 || at.IRAugMax != 3 {
		Te.Errorf("atom type misread: %+v", at)
	}
	if m.Positions[0] != [3]float64{0.1, 0.2, 0.3} {
		Te.Errorf("bad position %v", m.Positions[0])
	}
}

// a gzipped 'input' must be found and read when the plain file is absent
func TestOpenTextCompressed(Te *testing.T) {
	dir := Te.TempDir()
	writeTestTree(Te, dir, defaultTree(false))
	raw, err := os.ReadFile(filepath.Join(dir, "input"))
	if err != nil {
		Te.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "input")); err != nil {
		Te.Fatal(err)
	}
	gz, err := os.Create(filepath.Join(dir, "input.gz"))
	if err != nil {
		Te.Fatal(err)
	}
	zw := gzip.NewWriter(gz)
	zw.Write(raw)
	zw.Close()
	gz.Close()
	m, err := ReadExportMeta(dir)
	if err != nil {
		Te.Fatal(err)
	}
	if m.NGVecs != testNG {
		Te.Errorf("got %d G-vectors from the compressed input", m.NGVecs)
	}
}

func TestReadMGridShard(Te *testing.T) {
	dir := Te.TempDir()
	writeTestTree(Te, dir, defaultTree(false))
	n, mill, err := ReadMGridShard(dir, 2, 3)
	if err != nil {
		Te.Fatal(err)
	}
	if n != testNG || len(mill) != 2 {
		Te.Fatalf("got %d global, %d local", n, len(mill))
	}
	if mill[0] != testMiller[3] || mill[1] != testMiller[4] {
		Te.Errorf("wrong shard: %v", mill)
	}
	if _, _, err := ReadMGridShard(dir, 3, 5); err == nil {
		Te.Error("a shard beyond the global count must fail")
	}
}

func TestRecordFile(Te *testing.T) {
	dir := Te.TempDir()
	path := filepath.Join(dir, "recs")
	data := []complex128{1 + 2i, 3 + 4i, 5 + 6i, 7 + 8i}
	writeBin(Te, path, data)
	rf, err := openRecordFile(path, 32) //two values per record
	if err != nil {
		Te.Fatal(err)
	}
	defer rf.Close()
	got := make([]complex128, 2)
	if err := rf.ReadComplex128(2, got); err != nil {
		Te.Fatal(err)
	}
	if got[0] != 5+6i || got[1] != 7+8i {
		Te.Errorf("record 2 read as %v", got)
	}
	if err := rf.ReadComplex128(3, got); err == nil {
		Te.Error("reading past the end must fail")
	}
}
