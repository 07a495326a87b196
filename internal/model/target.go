package model

import (
	"encoding/base32"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/crypto/sha3"
)

// Target validation errors.
var (
	// ErrEmptyTarget is returned for blank targets.
	ErrEmptyTarget = errors.New("empty target")

	// ErrInvalidTarget is returned when a target is neither an IP address,
	// a DNS name, nor a valid v3 onion address.
	ErrInvalidTarget = errors.New("invalid target: expected IP address, domain name or v3 onion address")

	// ErrV2OnionDeprecated is returned for v2 onion addresses, which stopped
	// working in October 2021.
	ErrV2OnionDeprecated = errors.New("v2 onion addresses are deprecated and no longer functional")
)

const (
	onionSuffix  = ".onion"
	onionVersion = 0x03
)

var (
	onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)
	onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)
	hostPattern    = regexp.MustCompile(`^[a-z0-9_-]+(\.[a-z0-9_-]+)+$`)

	// checksumPrefix is part of the v3 onion address format.
	checksumPrefix = []byte(".onion checksum")
)

// NormalizeTarget cleans up a user-supplied target.
//
// It trims whitespace, lowercases, strips an http(s) scheme and anything
// after the host (path, query, fragment, port), then validates the result.
// IP addresses (including bracketed IPv6) and DNS names are accepted as-is;
// names ending in .onion must be valid v3 addresses.
func NormalizeTarget(raw string) (string, error) {
	target := strings.ToLower(strings.TrimSpace(raw))
	target = strings.TrimPrefix(target, "https://")
	target = strings.TrimPrefix(target, "http://")
	if idx := strings.IndexAny(target, "/?#"); idx != -1 {
		target = target[:idx]
	}
	if target == "" {
		return "", ErrEmptyTarget
	}

	if ip := parseIPHost(target); ip != nil {
		return ip.String(), nil
	}

	if host, _, err := net.SplitHostPort(target); err == nil {
		target = host
	}
	target = strings.TrimSuffix(target, ".")

	if strings.HasSuffix(target, onionSuffix) {
		if IsValidV3Onion(target) {
			return target, nil
		}
		if onionV2Pattern.MatchString(target) {
			return "", ErrV2OnionDeprecated
		}
		return "", ErrInvalidTarget
	}

	if !hostPattern.MatchString(target) {
		return "", ErrInvalidTarget
	}
	// IsDomainName enforces label and total length limits.
	if _, ok := dns.IsDomainName(target); !ok {
		return "", ErrInvalidTarget
	}
	return target, nil
}

// parseIPHost parses a bare IP address, a bracketed IPv6 address, or an
// IP with a port. It returns nil when the host is not an IP.
func parseIPHost(s string) net.IP {
	if ip := net.ParseIP(strings.Trim(s, "[]")); ip != nil {
		return ip
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return net.ParseIP(host)
	}
	return nil
}

// NormalizeTargets normalizes every target. The result has one entry per
// input, in input order; repeated targets are kept.
func NormalizeTargets(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		t, err := NormalizeTarget(r)
		if err != nil {
			return nil, &TargetError{Target: r, Err: err}
		}
		out = append(out, t)
	}
	return out, nil
}

// TargetError wraps a validation error with the offending input.
type TargetError struct {
	Target string
	Err    error
}

// Error implements the error interface.
func (e *TargetError) Error() string {
	return fmt.Sprintf("target %q: %v", e.Target, e.Err)
}

// Unwrap returns the underlying validation error.
func (e *TargetError) Unwrap() error {
	return e.Err
}

// IsValidV3Onion checks format and checksum of a v3 onion address.
// The checksum is the first two bytes of
// SHA3-256(".onion checksum" || pubkey || version).
func IsValidV3Onion(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, onionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}

	pubkey := decoded[:32]
	checksum := decoded[32:34]
	version := decoded[34]
	if version != onionVersion {
		return false
	}

	expected := onionChecksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

func onionChecksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)
	hash := sha3.Sum256(data)
	return hash[:2]
}
