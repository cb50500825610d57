// meplot draws the scaled matrix-element modulus of one or more result
// files against the initial band index, one line per (k-point, spin).
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/rmera/gotme"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

func main() {
	out := flag.String("o", "matrixElements.png", "output image")
	logy := flag.Bool("log", false, "logarithmic y axis")
	old := flag.Bool("old", false, "read the legacy record layout")
	flag.Parse()
	if flag.NArg() == 0 {
		log.Fatal("at least one allElecOverlap file must be given in the arguments")
	}

	p := plot.New()
	p.Title.Text = "Capture matrix elements"
	p.X.Label.Text = "initial band"
	p.Y.Label.Text = "|M|^2 (a.u.)"
	if *logy {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	var args []interface{}
	for _, path := range flag.Args() {
		rec, err := tme.ReadRecord(path, tme.ReadOptions{OldFormat: *old})
		if err != nil {
			log.Fatal(err)
		}
		if !rec.Capture {
			log.Fatalf("%s holds plain overlaps, nothing to plot against the band index", path)
		}
		pts := make(plotter.XYs, len(rec.Transitions))
		for i, t := range rec.Transitions {
			pts[i].X = float64(t.Ibi)
			pts[i].Y = t.Scaled
		}
		args = append(args, fmt.Sprintf("k %d spin %d", rec.IK, rec.ISpin), pts)
	}
	if err := plotutil.AddLinePoints(p, args...); err != nil {
		log.Fatal(err)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, *out); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s", *out)
}
