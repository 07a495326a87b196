package tor

import (
	"errors"
	"fmt"
)

// Tor connectivity errors.
// These errors are returned when there are problems connecting to or through Tor.
var (
	// ErrProxyNotTor is returned when the configured proxy address responds
	// but is not a Tor SOCKS5 proxy. This typically happens when connecting
	// to a regular HTTP proxy or a different service on the expected port.
	ErrProxyNotTor = errors.New("proxy is not a Tor SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when we cannot establish a TCP connection
	// to the proxy address. This usually means Tor is not running or the address
	// is incorrect.
	ErrProxyCannotConnect = errors.New("cannot connect to Tor proxy")

	// ErrProxyTimeout is returned when the connection to the proxy times out.
	ErrProxyTimeout = errors.New("timeout connecting to Tor proxy")

	// ErrInvalidProxyAddress is returned when the proxy address format is invalid.
	// Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrCookieNotFound is returned when no control auth cookie could be located.
	ErrCookieNotFound = errors.New("control auth cookie not found")

	// ErrEmptyIdentity is returned when the identity endpoint answers with
	// an empty body.
	ErrEmptyIdentity = errors.New("identity endpoint returned an empty body")

	// ErrEmbeddedNotRunning is returned when the embedded daemon is used
	// before Start or after Stop.
	ErrEmbeddedNotRunning = errors.New("embedded Tor daemon is not running")
)

// RotationStage names the step of a circuit rotation that failed.
type RotationStage string

const (
	// StageDial means the control port could not be reached.
	StageDial RotationStage = "dial"
	// StageAuth means cookie authentication failed.
	StageAuth RotationStage = "auth"
	// StageSignal means Tor rejected or never answered NEWNYM.
	StageSignal RotationStage = "signal"
)

// RotationError reports a failed circuit rotation. It is never fatal to a
// run; the coordinator stores its message in the affected record.
type RotationError struct {
	Stage RotationStage
	Err   error
}

func (e *RotationError) Error() string {
	return fmt.Sprintf("circuit rotation failed at %s: %v", e.Stage, e.Err)
}

func (e *RotationError) Unwrap() error {
	return e.Err
}

// IdentityLookupError reports a failed egress identity query.
type IdentityLookupError struct {
	URL string
	Err error
}

func (e *IdentityLookupError) Error() string {
	return fmt.Sprintf("identity lookup via %s failed: %v", e.URL, e.Err)
}

func (e *IdentityLookupError) Unwrap() error {
	return e.Err
}

// ProxyStatus represents the result of checking the Tor proxy connection.
type ProxyStatus int

const (
	// ProxyStatusOK indicates the proxy is a working Tor SOCKS5 proxy.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates the proxy is not a Tor proxy.
	// The connection succeeded but the response indicates a different type of proxy.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates we could not establish a connection.
	// Tor may not be running or the address may be wrong.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the connection attempt timed out.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not Tor)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the appropriate error for this status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotTor
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
