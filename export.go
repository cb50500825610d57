/*
 * export.go, part of goTME.
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
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gonum.org/v1/gonum/mat"
)

//The Export format is the on-disk contract with the wavefunction export
//front ends. Per crystal system directory:
//
//	input         labeled text metadata (this file may be gzip/zstd compressed)
//	mgrid         the global Miller-index list (may be compressed)
//	projectors.<k>         fixed-record binary, one record per global G+k
//	                       vector (record 1 reserved), nProj complex128 each
//	wfc.<spin>.<k>         fixed-record binary, one record per band,
//	                       nPWs1k complex64 each, in the mgrid order
//	projections.<spin>.<k> fixed-record binary, one record per band,
//	                       nProj complex128 each
//
//All binary files are little endian with no record markers; a record is
//located by offset arithmetic alone. Spin and k indexes in file names are
//1-based. Text values in 'input' appear after a '#' comment line, in the
//fixed order read below; the amplitudes are unitless by contract with the
//export stage and are never rescaled here.

// RawAtomType is the per-atom-type pseudopotential block as read from an
// Export 'input' file, before the radial-integral tensors are derived from
// it. The AE/PS partial waves and the grid derivative are only needed
// during that derivation and are dropped afterwards.
type RawAtomType struct {
	Element   string
	NChannels int
	L         []int       //angular momentum per channel
	LMMax     int         //total (l,m) projector channels, sum of 2l+1
	NR        int         //radial grid points
	IRAugMax  int         //points within the augmentation sphere
	RadGrid   []float64   //r, NR values
	DRadGrid  []float64   //dr, NR values
	AEWave    [][]float64 //[channel][ir] all-electron partial wave
	PSWave    [][]float64 //[channel][ir] pseudo partial wave
}

// ExportMeta is the parsed 'input' metadata of one Export directory.
type ExportMeta struct {
	Dir          string
	Omega        float64 //cell volume, (a.u.)^3
	NGVecs       int     //global G-vector count
	FFTGrid      [3]int
	NSpins       int
	NKPoints     int
	NPWs         []int //G+k vectors per k-point
	GammaOnly    bool
	Noncollinear bool
	RecipLattice *mat.Dense //3x3, row i is b_i in a.u.
	NAtoms       int
	NTypes       int
	TypeIndex    []int        //per atom, 0-based into Types
	Positions    [][3]float64 //Cartesian, a.u.
	NProj        int          //aggregate projector count
	Types        []RawAtomType
}

// openText opens a text input that may be stored plain, gzip (.gz) or zstd
// (.zst) compressed, deduced from the extension. The base path is tried
// first, then the compressed variants, so an Export tree can be compressed
// after the fact without touching the run input.
func openText(path string) (io.ReadCloser, error) {
	try := []string{path, path + ".gz", path + ".zst"}
	var name string
	var fin *os.File
	var err error
	for _, name = range try {
		fin, err = os.Open(name)
		if err == nil {
			break
		}
	}
	if fin == nil {
		return nil, Error{UnableToOpen, path, []string{"openText"}, true}
	}
	switch {
	case strings.HasSuffix(name, ".gz"):
		gz, err := gzip.NewReader(bufio.NewReader(fin))
		if err != nil {
			fin.Close()
			return nil, Error{err.Error(), name, []string{"gzip.NewReader", "openText"}, true}
		}
		return &stackedCloser{gz, fin}, nil
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(bufio.NewReader(fin))
		if err != nil {
			fin.Close()
			return nil, Error{err.Error(), name, []string{"zstd.NewReader", "openText"}, true}
		}
		return &stackedCloser{zr.IOReadCloser(), fin}, nil
	}
	return fin, nil
}

// stackedCloser closes a decompressor together with the file under it.
type stackedCloser struct {
	io.ReadCloser
	under io.Closer
}

func (s *stackedCloser) Close() error {
	err := s.ReadCloser.Close()
	if err2 := s.under.Close(); err == nil {
		err = err2
	}
	return err
}

// tokens reads whitespace-separated values from a text input, skipping '#'
// comment lines. All the Export text files are read through it.
type tokens struct {
	sc   *bufio.Scanner
	name string
}

func newTokens(r io.Reader, name string) *tokens {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	sc.Split(scanDataWords)
	return &tokens{sc, name}
}

// scanDataWords is a bufio.SplitFunc yielding words, with '#'-to-newline
// stretches treated as whitespace.
func scanDataWords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	i := 0
	for i < len(data) {
		switch {
		case data[i] == '#':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i == len(data) && !atEOF {
				return 0, nil, nil //comment may continue in the next chunk
			}
		case data[i] == ' ' || data[i] == '\t' || data[i] == '\n' || data[i] == '\r':
			i++
		default:
			start := i
			for i < len(data) && data[i] != ' ' && data[i] != '\t' && data[i] != '\n' && data[i] != '\r' && data[i] != '#' {
				i++
			}
			if i == len(data) && !atEOF {
				return start, nil, nil //word may continue in the next chunk
			}
			return i, data[start:i], nil
		}
	}
	if atEOF {
		return len(data), nil, nil
	}
	return i, nil, nil
}

func (t *tokens) next() (string, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return "", Error{err.Error(), t.name, []string{"tokens.next"}, true}
		}
		return "", Error{ShortRead, t.name, []string{"tokens.next"}, true}
	}
	return t.sc.Text(), nil
}

func (t *tokens) Int() (int, error) {
	s, err := t.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, Error{fmt.Sprintf("%s: expected an integer, got %q", WrongFormat, s), t.name, []string{"tokens.Int"}, true}
	}
	return v, nil
}

func (t *tokens) Float() (float64, error) {
	s, err := t.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, Error{fmt.Sprintf("%s: expected a float, got %q", WrongFormat, s), t.name, []string{"tokens.Float"}, true}
	}
	return v, nil
}

func (t *tokens) Bool() (bool, error) {
	s, err := t.next()
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "T", ".TRUE.", "TRUE":
		return true, nil
	case "F", ".FALSE.", "FALSE":
		return false, nil
	}
	return false, Error{fmt.Sprintf("%s: expected a logical, got %q", WrongFormat, s), t.name, []string{"tokens.Bool"}, true}
}

func (t *tokens) String() (string, error) {
	return t.next()
}

func (t *tokens) Floats(n int) ([]float64, error) {
	x := make([]float64, n)
	for i := range x {
		v, err := t.Float()
		if err != nil {
			return nil, err
		}
		x[i] = v
	}
	return x, nil
}

// ReadExportMeta parses the 'input' metadata file of the Export directory dir.
func ReadExportMeta(dir string) (*ExportMeta, error) {
	path := filepath.Join(dir, "input")
	fin, err := openText(path)
	if err != nil {
		return nil, errDecorate(err, "ReadExportMeta")
	}
	defer fin.Close()
	t := newTokens(fin, path)
	m := &ExportMeta{Dir: dir}
	if m.Omega, err = t.Float(); err != nil {
		return nil, errDecorate(err, "ReadExportMeta: cell volume")
	}
	if m.NGVecs, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadExportMeta: G-vector count")
	}
	for i := 0; i < 3; i++ {
		if m.FFTGrid[i], err = t.Int(); err != nil {
			return nil, errDecorate(err, "ReadExportMeta: FFT grid")
		}
	}
	if m.NSpins, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadExportMeta: spin count")
	}
	if m.NKPoints, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadExportMeta: k-point count")
	}
	m.NPWs = make([]int, m.NKPoints)
	for i := range m.NPWs {
		if m.NPWs[i], err = t.Int(); err != nil {
			return nil, errDecorate(err, "ReadExportMeta: plane-wave counts")
		}
	}
	if m.GammaOnly, err = t.Bool(); err != nil {
		return nil, errDecorate(err, "ReadExportMeta: gamma-only flag")
	}
	if m.Noncollinear, err = t.Bool(); err != nil {
		return nil, errDecorate(err, "ReadExportMeta: noncollinear flag")
	}
	b, err := t.Floats(9)
	if err != nil {
		return nil, errDecorate(err, "ReadExportMeta: reciprocal lattice")
	}
	m.RecipLattice = mat.NewDense(3, 3, b)
	if m.NAtoms, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadExportMeta: atom count")
	}
	if m.NTypes, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadExportMeta: atom-type count")
	}
	m.TypeIndex = make([]int, m.NAtoms)
	m.Positions = make([][3]float64, m.NAtoms)
	for i := 0; i < m.NAtoms; i++ {
		ti, err := t.Int()
		if err != nil {
			return nil, errDecorate(err, "ReadExportMeta: atom positions")
		}
		if ti < 1 || ti > m.NTypes {
			return nil, Error{fmt.Sprintf("%s: atom %d has type %d of %d", WrongFormat, i+1, ti, m.NTypes), path, []string{"ReadExportMeta"}, true}
		}
		m.TypeIndex[i] = ti - 1
		for j := 0; j < 3; j++ {
			if m.Positions[i][j], err = t.Float(); err != nil {
				return nil, errDecorate(err, "ReadExportMeta: atom positions")
			}
		}
	}
	if m.NProj, err = t.Int(); err != nil {
		return nil, errDecorate(err, "ReadExportMeta: projector count")
	}
	m.Types = make([]RawAtomType, m.NTypes)
	for it := range m.Types {
		if err := readRawAtomType(t, &m.Types[it]); err != nil {
			return nil, errDecorate(err, fmt.Sprintf("ReadExportMeta: atom type %d", it+1))
		}
	}
	//the aggregate projector count is redundant, which makes it a cheap
	//check that the export stage and this reader agree on the format.
	nproj := 0
	for _, i := range m.TypeIndex {
		nproj += m.Types[i].LMMax
	}
	if nproj != m.NProj {
		return nil, Error{fmt.Sprintf("%s: %d projectors declared, %d from the atom types", WrongFormat, m.NProj, nproj), path, []string{"ReadExportMeta"}, true}
	}
	return m, nil
}

func readRawAtomType(t *tokens, at *RawAtomType) error {
	var err error
	if at.Element, err = t.String(); err != nil {
		return err
	}
	if at.NChannels, err = t.Int(); err != nil {
		return err
	}
	at.L = make([]int, at.NChannels)
	at.LMMax = 0
	for i := range at.L {
		if at.L[i], err = t.Int(); err != nil {
			return err
		}
		at.LMMax += 2*at.L[i] + 1
	}
	nr, err := t.Int()
	if err != nil {
		return err
	}
	at.NR = nr
	if at.IRAugMax, err = t.Int(); err != nil {
		return err
	}
	if at.IRAugMax > at.NR {
		return Error{fmt.Sprintf("%s: augmentation index %d beyond the radial grid (%d points)", WrongFormat, at.IRAugMax, at.NR), t.name, []string{"readRawAtomType"}, true}
	}
	if at.RadGrid, err = t.Floats(nr); err != nil {
		return err
	}
	if at.DRadGrid, err = t.Floats(nr); err != nil {
		return err
	}
	at.AEWave = make([][]float64, at.NChannels)
	at.PSWave = make([][]float64, at.NChannels)
	for i := 0; i < at.NChannels; i++ {
		if at.AEWave[i], err = t.Floats(nr); err != nil {
			return err
		}
	}
	for i := 0; i < at.NChannels; i++ {
		if at.PSWave[i], err = t.Floats(nr); err != nil {
			return err
		}
	}
	return nil
}

// ReadMGridShard reads the global Miller-index list and returns the global
// count plus the shard [offset, offset+count) of it. Every worker scans the
// same file and keeps only its own contiguous block; the engine treats the
// on-file order as fixed and trusted.
func ReadMGridShard(dir string, count, offset int) (nGlobal int, miller [][3]int, err error) {
	path := filepath.Join(dir, "mgrid")
	fin, err := openText(path)
	if err != nil {
		return 0, nil, errDecorate(err, "ReadMGridShard")
	}
	defer fin.Close()
	t := newTokens(fin, path)
	if nGlobal, err = t.Int(); err != nil {
		return 0, nil, errDecorate(err, "ReadMGridShard")
	}
	if offset+count > nGlobal {
		return 0, nil, Error{fmt.Sprintf("shard [%d,%d) outside the %d G-vectors", offset, offset+count, nGlobal), path, []string{"ReadMGridShard"}, true}
	}
	miller = make([][3]int, count)
	for ig := 0; ig < offset+count; ig++ {
		idx, err := t.Int()
		if err != nil {
			return 0, nil, errDecorate(err, "ReadMGridShard")
		}
		if idx != ig+1 {
			return 0, nil, Error{fmt.Sprintf("%s: G-vector %d labeled %d", WrongFormat, ig+1, idx), path, []string{"ReadMGridShard"}, true}
		}
		var mv [3]int
		for j := 0; j < 3; j++ {
			if mv[j], err = t.Int(); err != nil {
				return 0, nil, errDecorate(err, "ReadMGridShard")
			}
		}
		if ig >= offset {
			miller[ig-offset] = mv
		}
	}
	return nGlobal, miller, nil
}

//Fixed-record binary files. A record is located by offset arithmetic from
//a 1-based record index, like the Fortran direct-access files they mirror.

type recordFile struct {
	f      *os.File
	recLen int64
	name   string
}

func openRecordFile(path string, recLen int64) (*recordFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Error{UnableToOpen, path, []string{"openRecordFile"}, true}
	}
	return &recordFile{f, recLen, path}, nil
}

func (r *recordFile) Close() error { return r.f.Close() }

// section returns a reader over records [rec, rec+n), rec 1-based.
func (r *recordFile) section(rec, n int64) io.Reader {
	return io.NewSectionReader(r.f, (rec-1)*r.recLen, n*r.recLen)
}

// ReadComplex128 fills dst from the 1-based record rec onwards.
func (r *recordFile) ReadComplex128(rec int64, dst []complex128) error {
	n := (int64(len(dst))*16 + r.recLen - 1) / r.recLen
	if err := binary.Read(r.section(rec, n), binary.LittleEndian, dst); err != nil {
		return Error{fmt.Sprintf("%s: record %d: %s", ShortRead, rec, err.Error()), r.name, []string{"ReadComplex128"}, true}
	}
	return nil
}

// ReadComplex64 reads single-precision complex values from the 1-based
// record rec onwards, widening them into dst.
func (r *recordFile) ReadComplex64(rec int64, dst []complex128) error {
	buf := make([]complex64, len(dst))
	n := (int64(len(buf))*8 + r.recLen - 1) / r.recLen
	if err := binary.Read(r.section(rec, n), binary.LittleEndian, buf); err != nil {
		return Error{fmt.Sprintf("%s: record %d: %s", ShortRead, rec, err.Error()), r.name, []string{"ReadComplex64"}, true}
	}
	for i, v := range buf {
		dst[i] = complex128(v)
	}
	return nil
}
