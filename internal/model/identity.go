package model

// UnknownLabel is the identity label used when the exit identity could not
// be determined.
const UnknownLabel = "unknown"

// UnknownIdentity is the sentinel identity returned when a lookup fails.
// Callers must treat it as a valid, terminal value and not retry.
var UnknownIdentity = Identity{Label: UnknownLabel}

// Identity is an opaque token describing the current egress point,
// usually the Tor exit IP address. Two identities are equal when their
// labels are equal; no further structure is assumed.
type Identity struct {
	Label string
}

// NewIdentity returns an identity with the given label.
// An empty label collapses to UnknownIdentity.
func NewIdentity(label string) Identity {
	if label == "" {
		return UnknownIdentity
	}
	return Identity{Label: label}
}

// IsUnknown reports whether the identity is the unknown sentinel.
func (i Identity) IsUnknown() bool {
	return i.Label == "" || i.Label == UnknownLabel
}

// String returns the identity label.
func (i Identity) String() string {
	if i.Label == "" {
		return UnknownLabel
	}
	return i.Label
}

// MarshalText encodes the identity as its label, so records carry a plain
// string rather than an object.
func (i Identity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText decodes an identity from its label.
func (i *Identity) UnmarshalText(text []byte) error {
	*i = NewIdentity(string(text))
	return nil
}
