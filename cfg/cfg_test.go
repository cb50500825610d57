package cfg

import (
	"os"
	"path/filepath"
	"testing"
)

func validOverlap() *Cfg {
	return &Cfg{
		BraDir: "bra", KetDir: "ket", OutputDir: "out",
		Mode:         MOverlap,
		BraBandFirst: 1, BraBandLast: 4,
		KetBandFirst: 2, KetBandLast: 3,
		NProcs: 4, NPools: 2,
	}
}

func TestNew(Te *testing.T) {
	dir := Te.TempDir()
	path := filepath.Join(dir, "run.yaml")
	doc := `
braDir: /data/perfect
ketDir: /data/defect
outputDir: /data/out
mode: capture
order: 1
phononMode: 3
dqFile: /data/dq.txt
baselineDir: /data/base
ibiFirst: 1
ibiLast: 10
ibf: 42
nProcs: 8
nPools: 2
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		Te.Fatal(err)
	}
	c, err := New(path)
	if err != nil {
		Te.Fatal(err)
	}
	if c.Mode != MCapture || c.Order != 1 || c.PhononMode != 3 || c.Ibf != 42 {
		Te.Errorf("decoded: %+v", c)
	}
	if c.NProcs != 8 || c.NPools != 2 {
		Te.Errorf("parallel setup: %d procs, %d pools", c.NProcs, c.NPools)
	}
	if !c.Capture() {
		Te.Error("Capture() must be true for a capture run")
	}
}

func TestCheckDefaults(Te *testing.T) {
	c := validOverlap()
	c.NProcs, c.NPools = 0, 0
	if err := c.Check(); err != nil {
		Te.Fatal(err)
	}
	if c.NProcs != 1 || c.NPools != 1 {
		Te.Errorf("defaults: %d procs, %d pools", c.NProcs, c.NPools)
	}
}

func TestCheckRejects(Te *testing.T) {
	for name, breakIt := range map[string]func(*Cfg){
		"missing dirs":          func(c *Cfg) { c.BraDir = "" },
		"missing output":        func(c *Cfg) { c.OutputDir = "" },
		"bad mode":              func(c *Cfg) { c.Mode = "banana" },
		"pools not dividing":    func(c *Cfg) { c.NProcs = 5 },
		"bad spin":              func(c *Cfg) { c.Spin = 3 },
		"reversed bra range":    func(c *Cfg) { c.BraBandFirst = 5 },
		"zero-based ket range":  func(c *Cfg) { c.KetBandFirst = 0 },
	} {
		c := validOverlap()
		breakIt(c)
		if err := c.Check(); err == nil {
			Te.Errorf("%s: Check passed", name)
		}
	}

	capture := func() *Cfg {
		c := validOverlap()
		c.Mode = MCapture
		c.IbiFirst, c.IbiLast, c.Ibf = 1, 10, 42
		c.EnergyTableDir = "tables"
		return c
	}
	for name, breakIt := range map[string]func(*Cfg){
		"order 0 without tables": func(c *Cfg) { c.EnergyTableDir = "" },
		"bad order":              func(c *Cfg) { c.Order = 2 },
		"reversed initial range": func(c *Cfg) { c.IbiFirst = 20 },
		"missing final band":     func(c *Cfg) { c.Ibf = 0 },
		"order 1 without dq":     func(c *Cfg) { c.Order = 1; c.PhononMode = 1 },
		"order 1 without mode":   func(c *Cfg) { c.Order = 1; c.DqFile = "dq" },
	} {
		c := capture()
		breakIt(c)
		if err := c.Check(); err == nil {
			Te.Errorf("%s: Check passed", name)
		}
	}
	c := capture()
	c.Order = 1
	c.PhononMode = 2
	c.DqFile = "dq"
	if err := c.Check(); err != nil {
		Te.Errorf("a valid order-1 run was rejected: %v", err)
	}
	//the baseline is optional for order 1
	c.BaselineDir = ""
	if err := c.Check(); err != nil {
		Te.Errorf("an order-1 run without a baseline was rejected: %v", err)
	}
}

func TestPairs(Te *testing.T) {
	c := validOverlap()
	got, err := c.Pairs()
	if err != nil {
		Te.Fatal(err)
	}
	want := [][2]int{{1, 2}, {1, 3}, {2, 2}, {2, 3}, {3, 2}, {3, 3}, {4, 2}, {4, 3}}
	if len(got) != len(want) {
		Te.Fatalf("%d pairs from the ranges", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			Te.Errorf("pair %d = %v, want %v", i, got[i], want[i])
		}
	}

	//an explicit list overrides the ranges, in its own order
	c.BandPairs = []string{"7 3", "1 1"}
	if err := c.Check(); err != nil {
		Te.Fatal(err)
	}
	got, err = c.Pairs()
	if err != nil {
		Te.Fatal(err)
	}
	if len(got) != 2 || got[0] != [2]int{7, 3} || got[1] != [2]int{1, 1} {
		Te.Errorf("explicit pairs parsed as %v", got)
	}

	for name, bad := range map[string][]string{
		"one field":   {"3"},
		"three":       {"1 2 3"},
		"not numbers": {"a b"},
		"zero-based":  {"0 1"},
	} {
		c.BandPairs = bad
		if err := c.Check(); err == nil {
			Te.Errorf("%s: Check passed for %q", name, bad)
		}
	}
}
