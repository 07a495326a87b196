// Package recon drives a reconnaissance run.
//
// The Coordinator walks the targets strictly in order, one at a time. For
// each target it optionally requests a new Tor circuit, runs every selected
// module through the proxied executor, records the exit identity and turns
// the outcome into an ExecutionRecord. A failing target never stops the
// run; only context cancellation does, and then the records gathered so far
// are still returned.
package recon
