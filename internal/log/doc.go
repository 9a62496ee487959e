// Package log builds the slog loggers used by publiccrawler.
//
// Every logger wraps its text or JSON handler in a SecureHandler, which
// masks credentials before they are written:
//   - attributes whose key names a secret (authorization, api_key, token, dsn, ...)
//   - bearer and basic authorization values, AWS access keys and PEM private keys
//   - the password part of URLs such as proxy addresses and database DSNs
//
// Usage:
//
//	logger := log.New(os.Stderr, verbose, config.LogFormatText)
//	slog.SetDefault(logger)
package log
