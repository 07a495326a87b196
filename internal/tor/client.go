package tor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/nao1215/torrecon/internal/config"
	"golang.org/x/net/proxy"
)

// checkProxyTimeout is the timeout for checking if the Tor proxy is available.
// We use a short timeout here because this is just a connectivity check,
// not an actual request through Tor.
const checkProxyTimeout = 2 * time.Second

// Client provides Tor network connectivity for torrecon's own traffic
// (identity lookups and preflight checks). External tools do not use it;
// they are wrapped by the proxy launcher instead.
type Client struct {
	// cfg is the proxy configuration shared with the executor.
	cfg config.ProxyConfig

	// dialer is the SOCKS5 dialer for Tor connections.
	dialer proxy.Dialer

	// resolver resolves hostnames locally when the scheme is socks5.
	resolver *net.Resolver
}

// NewClient creates a new Tor client for the given proxy configuration.
//
// This function validates the SOCKS address format but does not verify
// that the proxy is actually running. Call CheckConnection() to verify.
func NewClient(cfg config.ProxyConfig) (*Client, error) {
	if !config.IsValidAddress(cfg.SocksAddress) {
		return nil, ErrInvalidProxyAddress
	}
	if cfg.Scheme != config.SchemeSOCKS5H && cfg.Scheme != config.SchemeSOCKS5 {
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidScheme, cfg.Scheme)
	}

	// Tor's SOCKS port does not require auth.
	dialer, err := proxy.SOCKS5("tcp", cfg.SocksAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	return &Client{
		cfg:      cfg,
		dialer:   dialer,
		resolver: net.DefaultResolver,
	}, nil
}

// SOCKS5 protocol constants
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5AuthNoAccept  = 0xFF
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03

	// socks5TestOnion is a synthetic .onion address used for SOCKS5 verification.
	// We only need to verify the proxy responds to SOCKS5 CONNECT requests,
	// not that the connection succeeds.
	socks5TestOnion = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.onion"
)

// CheckConnection verifies that the Tor proxy is running and accessible.
//
// The check performs a SOCKS5 handshake and a CONNECT to a synthetic onion
// address. Any well-formed CONNECT reply, success or failure, means the
// listener is a SOCKS5 proxy that accepts unauthenticated clients.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.cfg.SocksAddress)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: version, one method, "no auth".
	if _, err = conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if authResp[0] != socks5Version || authResp[1] == socks5AuthNoAccept || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	testPort := uint16(80)
	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00, // reserved
		socks5AddrTypeDomID,
		byte(len(socks5TestOnion)),
	}
	connectReq = append(connectReq, []byte(socks5TestOnion)...)
	connectReq = append(connectReq, byte(testPort>>8), byte(testPort&0xFF))

	if _, err = conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	// version + reply + reserved + addr type
	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}

	// Tor answers 0x04 (host unreachable) or 0x01 (general failure) for the
	// synthetic address; any reply code proves it processed the request.
	return ProxyStatusOK
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// DialContext establishes a TCP connection through Tor with context support.
//
// With the socks5h scheme the hostname is handed to Tor. With the socks5
// scheme it is resolved locally first, which leaks the lookup to the local
// resolver; that is the documented cost of choosing socks5.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !c.cfg.Scheme.RemoteDNS() {
		resolved, err := c.resolveLocally(ctx, address)
		if err != nil {
			return nil, err
		}
		address = resolved
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)

	// proxy.Dialer has no context support; the dial may outlive a
	// cancelled context briefly.
	go func() {
		conn, err := c.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		// Nobody will use a connection that arrives after cancellation.
		go func() {
			if result := <-resultCh; result.conn != nil {
				result.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// resolveLocally replaces the host part of address with its first IP.
func (c *Client) resolveLocally(ctx context.Context, address string) (string, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "", err
	}
	if net.ParseIP(host) != nil {
		return address, nil
	}
	addrs, err := c.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", fmt.Errorf("local DNS lookup for %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("local DNS lookup for %s: no addresses", host)
	}
	return net.JoinHostPort(addrs[0].IP.String(), port), nil
}

// NewHTTPClient creates an HTTP client that routes all requests through Tor.
//
// Unlike hidden-service crawling, identity endpoints are clearnet HTTPS
// services, so TLS verification stays on. Keep-alives are disabled so that
// every lookup opens a fresh stream and observes the current circuit.
func (c *Client) NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext:        c.DialContext,
		DisableKeepAlives:  true,
		DisableCompression: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// ProxyConfig returns the proxy configuration this client was built with.
func (c *Client) ProxyConfig() config.ProxyConfig {
	return c.cfg
}
