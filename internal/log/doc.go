// Package log builds torrecon's slog loggers.
//
// Every logger returned here is wrapped in a SecureHandler, which masks
// values that could deanonymize the operator or unlock the Tor daemon:
// control auth cookies and passwords, provider API keys, bearer tokens and
// secrets embedded in control commands or URLs. Masking is applied even in
// verbose mode.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//	logger.Debug("control", "cmd", "AUTHENTICATE 0a1b...") // AUTHENTICATE ***REDACTED***
//
// The identity/command audit line is logged at Info, so it is only visible
// with -v; the executor also prints it to stdout.
package log
