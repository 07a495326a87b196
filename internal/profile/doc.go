// Package profile holds the built-in scan profiles.
//
// A profile bundles the nmap flags used for the port module with the
// circuit rotation policy. The set is closed: profiles are registered once
// by NewRegistry and cannot be changed afterwards, and lookups are exact.
package profile
