// Command mesh-router adjudicates and scores routes over a satellite mesh
// topology, either as a long-running HTTP service or as one-shot queries.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
