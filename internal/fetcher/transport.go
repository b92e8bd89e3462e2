package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const defaultIdleConnsPerHost = 4

// newTransport builds the HTTP transport, optionally routed through a proxy.
//
// Compression is disabled on the transport because Accept-Encoding is set
// explicitly (including br, which net/http cannot decode) and readBody
// decodes the body itself.
func newTransport(opts Options) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	perHost := opts.MaxIdleConnsPerHost
	if perHost <= 0 {
		perHost = defaultIdleConnsPerHost
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   perHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}

	if strings.TrimSpace(opts.ProxyURL) == "" {
		return transport, nil
	}

	proxyURL, err := url.Parse(opts.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProxy, err)
	}

	switch strings.ToLower(proxyURL.Scheme) {
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)
	case "socks5", "socks5h":
		socks, err := proxy.FromURL(proxyURL, dialer)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidProxy, err)
		}
		transport.DialContext = contextDialer(socks)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxy, proxyURL.Scheme)
	}
	return transport, nil
}

// contextDialer adapts a proxy.Dialer to the DialContext signature.
// The SOCKS5 dialer from x/net implements proxy.ContextDialer; other dialers
// fall back to a plain Dial.
func contextDialer(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}
