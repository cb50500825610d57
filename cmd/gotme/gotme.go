package main

import (
	"fmt"
	"log"
	"os"

	"github.com/rmera/gotme"
	"github.com/rmera/gotme/cfg"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatal("The path of the YAML configuration file must be specified in the arguments")
	}

	log.Printf("Reading configuration file `%s`\n", os.Args[1])
	c, err := cfg.New(os.Args[1])
	if err != nil {
		log.Fatal(fmt.Errorf("cfg.New: %w", err))
	}

	log.Printf("Running a %s calculation with %d workers in %d pools", c.Mode, c.NProcs, c.NPools)
	if err := tme.Run(c); err != nil {
		log.Fatal(err)
	}

	log.Println("Done")
}
