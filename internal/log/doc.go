// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic sanitization of sensitive values (cookies, tokens, secrets)
//   - Masking of credentials and signed query parameters inside logged URLs
//   - Configurable log levels with verbose mode support
//   - An append-mode log file that receives a copy of the console output
//
// # Security Features
//
// The SecureHandler sanitizes sensitive information in log output:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - Secret values detected by pattern matching (bearer tokens, JWTs, keys)
//   - Query parameters such as token, key or signature in URL attributes
//   - Session identifiers and authentication tokens
//
// Even in verbose mode, sensitive values are masked so that crawl logs can
// be shared without leaking the cookie or headers given on the command line.
//
// # Usage
//
//	w, closeLog, err := log.Tee(os.Stderr, "example.com.log")
//	if err != nil {
//	    return err
//	}
//	defer closeLog()
//
//	logger := log.NewSecureLogger(w, verbose)
//	logger.Info("fetched",
//	    "url", "https://example.com/file?token=abc", // token value is masked
//	    "cookie", "session=abc123",                  // masked entirely
//	)
package log
