// Package executor runs external reconnaissance tools through the Tor
// proxy launcher.
//
// Every command is prefixed with the launcher (torsocks by default), which
// intercepts the child's sockets and sends them to the configured SOCKS
// listener. Before the child starts, the executor samples the current exit
// identity and writes one audit line naming it.
//
// Known limitation: the audited identity is the one observed just before
// launch. Tor may move streams to a new circuit while the tool runs, so it
// is not guaranteed to be the identity every packet left through.
//
// Launch failures and non-zero exits are reported in the Outcome, never as
// a returned error.
package executor
