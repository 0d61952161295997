package routecalc

import (
	"bytes"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// minCompressSize is the smallest body worth compressing
const minCompressSize = 512

// negotiateEncoding picks a content encoding from the Accept-Encoding
// header. Brotli is preferred over gzip; identity otherwise.
func negotiateEncoding(acceptEncoding string) string {
	var hasGzip, hasBrotli bool
	for _, part := range strings.Split(acceptEncoding, ",") {
		enc := strings.TrimSpace(part)
		if i := strings.IndexByte(enc, ';'); i >= 0 {
			enc = strings.TrimSpace(enc[:i])
		}
		switch enc {
		case "br":
			hasBrotli = true
		case "gzip":
			hasGzip = true
		}
	}
	switch {
	case hasBrotli:
		return "br"
	case hasGzip:
		return "gzip"
	default:
		return ""
	}
}

// compressBody encodes body with the given encoding. An empty encoding or
// a body below the size threshold passes through unchanged; the returned
// encoding is what was actually applied.
func compressBody(encoding string, body []byte) ([]byte, string, error) {
	if encoding == "" || len(body) < minCompressSize {
		return body, "", nil
	}

	var buf bytes.Buffer
	switch encoding {
	case "br":
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
	case "gzip":
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
	default:
		return body, "", nil
	}

	return buf.Bytes(), encoding, nil
}
