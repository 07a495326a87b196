// Package tor holds everything torrecon needs to talk to Tor itself.
//
// Client dials through the SOCKS5 listener for torrecon's own traffic.
// IdentityProvider asks an external "what is my address" endpoint which exit
// the current circuit uses. Rotator authenticates to the control port with
// the auth cookie and sends NEWNYM through github.com/nao1215/tornago.
// EmbeddedTor starts a private daemon when no system Tor is available.
//
// All of them are built from one config.ProxyConfig so that the identity
// check, the rotation and the wrapped tools agree on the route.
package tor
