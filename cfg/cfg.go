// Package cfg reads and validates the YAML input file of the gotme
// command. The zero value of Cfg is not usable; build one with New or
// fill it by hand and call Check.
package cfg

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode is the kind of calculation to run.
type Mode string

// The accepted modes. In an overlap run every bra/ket band pair in the
// configured ranges is computed. In a capture run a single final band is
// paired with a range of initial bands, scaled with the energy tables.
var (
	MOverlap Mode = "overlap"
	MCapture Mode = "capture"
)

// Cfg holds the parameters of one run.
type Cfg struct {
	// BraDir and KetDir are the two exported-system directories. They may
	// point to the same export.
	BraDir string `yaml:"braDir"`
	KetDir string `yaml:"ketDir"`

	// OutputDir receives one allElecOverlap.<spin>.<k> file per k-point
	// and spin. Files already present there are taken as complete and
	// their (k, spin) blocks are skipped.
	OutputDir string `yaml:"outputDir"`

	Mode Mode `yaml:"mode"`

	// Order of the capture matrix element: 0 (energy-weighted overlap) or
	// 1 (finite-difference derivative along one phonon mode).
	Order int `yaml:"order"`

	// PhononMode and DqFile select the displacement magnitude of an
	// order-1 run. BaselineDir points at the zeroth-order overlaps to
	// subtract before dividing by dq; leaving it empty skips the
	// subtraction.
	PhononMode  int    `yaml:"phononMode"`
	DqFile      string `yaml:"dqFile"`
	BaselineDir string `yaml:"baselineDir"`

	// EnergyTableDir holds energyTable.<spin>.<k> files for capture runs
	// of order 0, and for order 1 when weightFirstOrder is set.
	EnergyTableDir string `yaml:"energyTableDir"`

	// WeightFirstOrder multiplies the order-1 scaled modulus by dE^2 as
	// well, instead of reporting |U/dq|^2 alone.
	WeightFirstOrder bool `yaml:"weightFirstOrder"`

	// Spin restricts the run to one spin channel (1 or 2); 0 runs all
	// channels present in the exports.
	Spin int `yaml:"spin"`

	// BandPairs lists explicit overlap pairs, one "ibBra ibKet" string
	// per entry. When set, the band ranges below are ignored.
	BandPairs []string `yaml:"bandPairs"`

	// Overlap-mode band ranges, inclusive and 1-based.
	BraBandFirst int `yaml:"braBandFirst"`
	BraBandLast  int `yaml:"braBandLast"`
	KetBandFirst int `yaml:"ketBandFirst"`
	KetBandLast  int `yaml:"ketBandLast"`

	// Capture-mode bands: initial range in the ket system, one final band
	// in the bra system.
	IbiFirst int `yaml:"ibiFirst"`
	IbiLast  int `yaml:"ibiLast"`
	Ibf      int `yaml:"ibf"`

	// NProcs is the total number of worker goroutines, NPools how many
	// pools they are split into. NProcs must be a multiple of NPools.
	NProcs int `yaml:"nProcs"`
	NPools int `yaml:"nPools"`
}

// New opens and decodes a YAML configuration file and checks it.
func New(path string) (*Cfg, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var c Cfg
	dec := yaml.NewDecoder(bufio.NewReader(f))
	err = dec.Decode(&c)
	if err != nil {
		return nil, err
	}

	err = c.Check()
	if err != nil {
		return nil, fmt.Errorf("Check: %w", err)
	}

	return &c, nil
}

// Check returns an error if a field does not meet the requirements.
func (c *Cfg) Check() error {
	if c.BraDir == "" || c.KetDir == "" {
		return fmt.Errorf("braDir and ketDir are both required")
	}

	if c.OutputDir == "" {
		return fmt.Errorf("outputDir is required")
	}

	if c.Mode != MOverlap && c.Mode != MCapture {
		return fmt.Errorf("mode must be %q or %q", MOverlap, MCapture)
	}

	if c.NProcs <= 0 {
		c.NProcs = 1
	}
	if c.NPools <= 0 {
		c.NPools = 1
	}
	if c.NProcs%c.NPools != 0 {
		return fmt.Errorf("nProcs (%d) must be a multiple of nPools (%d)", c.NProcs, c.NPools)
	}

	if c.Spin < 0 || c.Spin > 2 {
		return fmt.Errorf("spin must be 0 (all), 1 or 2")
	}

	if c.Mode == MOverlap {
		if len(c.BandPairs) > 0 {
			_, err := c.Pairs()
			return err
		}
		if c.BraBandFirst <= 0 || c.BraBandLast < c.BraBandFirst {
			return fmt.Errorf("braBandFirst..braBandLast is not a valid 1-based range")
		}
		if c.KetBandFirst <= 0 || c.KetBandLast < c.KetBandFirst {
			return fmt.Errorf("ketBandFirst..ketBandLast is not a valid 1-based range")
		}
		return nil
	}

	if c.IbiFirst <= 0 || c.IbiLast < c.IbiFirst {
		return fmt.Errorf("ibiFirst..ibiLast is not a valid 1-based range")
	}
	if c.Ibf <= 0 {
		return fmt.Errorf("ibf must be a 1-based band index")
	}

	switch c.Order {
	case 0:
		if c.EnergyTableDir == "" {
			return fmt.Errorf("an order-0 capture run needs energyTableDir")
		}
	case 1:
		if c.PhononMode <= 0 {
			return fmt.Errorf("an order-1 capture run needs a 1-based phononMode")
		}
		if c.DqFile == "" {
			return fmt.Errorf("an order-1 capture run needs dqFile")
		}
		if c.WeightFirstOrder && c.EnergyTableDir == "" {
			return fmt.Errorf("weightFirstOrder needs energyTableDir")
		}
	default:
		return fmt.Errorf("order must be 0 or 1")
	}

	return nil
}

// Pairs returns the bra/ket band pairs of an overlap run: the parsed
// bandPairs list when one is given, otherwise every combination of the two
// ranges with the bra band outermost.
func (c *Cfg) Pairs() ([][2]int, error) {
	if len(c.BandPairs) == 0 {
		out := make([][2]int, 0, (c.BraBandLast-c.BraBandFirst+1)*(c.KetBandLast-c.KetBandFirst+1))
		for a := c.BraBandFirst; a <= c.BraBandLast; a++ {
			for b := c.KetBandFirst; b <= c.KetBandLast; b++ {
				out = append(out, [2]int{a, b})
			}
		}
		return out, nil
	}
	out := make([][2]int, len(c.BandPairs))
	for i, s := range c.BandPairs {
		f := strings.Fields(s)
		if len(f) != 2 {
			return nil, fmt.Errorf("bandPairs[%d]: %q is not \"ibBra ibKet\"", i, s)
		}
		a, errA := strconv.Atoi(f[0])
		b, errB := strconv.Atoi(f[1])
		if errA != nil || errB != nil || a < 1 || b < 1 {
			return nil, fmt.Errorf("bandPairs[%d]: %q is not a pair of 1-based band indexes", i, s)
		}
		out[i] = [2]int{a, b}
	}
	return out, nil
}

// Capture reports whether the run computes capture matrix elements.
func (c *Cfg) Capture() bool { return c.Mode == MCapture }
