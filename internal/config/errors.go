package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() before any target is
// processed. They are fatal: the run is aborted and no report is written.
var (
	// ErrNoTarget is returned when neither a target nor a campaign is given.
	ErrNoTarget = errors.New("no target specified: provide a target or use --campaign")

	// ErrNoModule is returned when a single target is given without
	// selecting a module.
	ErrNoModule = errors.New("no module selected: use --ports and/or --subs")

	// ErrInvalidScheme is returned for proxy schemes other than socks5 and socks5h.
	ErrInvalidScheme = errors.New("invalid proxy scheme: must be socks5 or socks5h")

	// ErrInvalidProxyAddress is returned when the SOCKS or control address
	// is not in host:port form.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrInvalidCooldown is returned when the rotation cooldown is negative.
	ErrInvalidCooldown = errors.New("invalid rotation cooldown: must be non-negative")

	// ErrInvalidIdentityTimeout is returned when the identity lookup timeout is not positive.
	ErrInvalidIdentityTimeout = errors.New("invalid identity timeout: must be positive")

	// ErrInvalidExecTimeout is returned when the command timeout is negative.
	ErrInvalidExecTimeout = errors.New("invalid command timeout: must be non-negative (0 disables it)")

	// ErrInvalidSampling is returned for identity sampling modes other than before and after.
	ErrInvalidSampling = errors.New("invalid identity sampling: must be before or after")

	// ErrEmptyOutputDir is returned when no output directory is configured.
	ErrEmptyOutputDir = errors.New("output directory must not be empty")

	// ErrEmptyLauncher is returned when no proxy launcher is configured.
	ErrEmptyLauncher = errors.New("proxy launcher must not be empty")
)
