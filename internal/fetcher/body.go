package fetcher

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// readBody reads and decodes the response body and always closes it.
// A limit of zero disables the size cap.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	defer resp.Body.Close() //nolint:errcheck // read errors are what matter here

	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip decode: %w", ErrTransport, err)
		}
		defer gz.Close() //nolint:errcheck // closing a gzip reader only reports checksum state already seen by Read
		reader = gz
	case "deflate":
		zr, err := deflateReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: deflate decode: %w", ErrTransport, err)
		}
		defer zr.Close() //nolint:errcheck // see above
		reader = zr
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	if limit <= 0 {
		body, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	return body, nil
}

// deflateReader decodes an HTTP "deflate" body. The coding is zlib-wrapped
// (RFC 1950), but some servers send raw DEFLATE, which is accepted when the
// first two bytes are not a valid zlib header.
func deflateReader(body io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(body)
	header, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if isZlibHeader(header) {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

// isZlibHeader checks the CMF/FLG pair: compression method 8 and a
// header checksum divisible by 31.
func isZlibHeader(h []byte) bool {
	if len(h) < 2 {
		return false
	}
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}
