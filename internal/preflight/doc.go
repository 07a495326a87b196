// Package preflight checks that the environment can run a scan: the SOCKS
// proxy speaks SOCKS5, the control port accepts the cookie, the external
// tools are installed and the identity endpoint answers through Tor.
//
// Checks are independent and run concurrently. Every check reports a
// result; none of them aborts the others.
package preflight
