// Package model defines the data structures shared by the torrecon packages.
//
// This package contains the following main types:
//   - ScanProfile: A named bundle of nmap flags and rotation policy
//   - Identity: An opaque snapshot of the Tor exit identity
//   - ExecutionRecord: What ran, against which target, under which identity
//   - RunReport: The aggregate of all records produced by one invocation
//
// The models are serializable to JSON for the result files and the run
// history database. Field names in the JSON encoding are stable.
package model
