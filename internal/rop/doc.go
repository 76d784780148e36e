// Package rop converts a network of Houdini render output drivers into an
// ordered list of render steps.
//
// The step graph comes from the hscript render command's dependency listing
// ("render -p -c -F"), which prints one line per driver:
//
//	<id> [ <dependency ids> ] <node path> ( <start> <end> <inc> )
//
// Each step carries a render strategy: PARALLEL steps become one farm task per
// frame, SEQUENTIAL steps become a single task that renders the whole range in
// order. Geometry drivers with simulation reset enabled default to SEQUENTIAL
// because simulations depend on prior frames; an explicit per-node strategy
// parameter overrides the default in either direction.
package rop
