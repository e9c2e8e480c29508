// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

type encoding int

const (
	encodingNone encoding = iota
	encodingGzip
	encodingBrotli
	encodingZstd
)

func (e encoding) header() string {
	switch e {
	case encodingGzip:
		return "gzip"
	case encodingBrotli:
		return "br"
	case encodingZstd:
		return "zstd"
	default:
		return ""
	}
}

// compressWriter buffers the first minSize bytes so small responses and
// non-JSON bodies go out untouched.
type compressWriter struct {
	http.ResponseWriter
	enc     encoding
	level   int
	minSize int

	status  int
	buf     []byte
	writer  io.WriteCloser
	decided bool
}

func (w *compressWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *compressWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.decided {
		if w.writer != nil {
			return w.writer.Write(p)
		}
		return w.ResponseWriter.Write(p)
	}

	w.buf = append(w.buf, p...)
	if len(w.buf) >= w.minSize {
		if err := w.decide(true); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// decide commits to compressing or not and flushes the buffered prefix.
func (w *compressWriter) decide(large bool) error {
	w.decided = true

	h := w.Header()
	if large && compressible(h.Get("Content-Type")) && h.Get("Content-Encoding") == "" {
		h.Del("Content-Length")
		h.Set("Content-Encoding", w.enc.header())
		w.writer = w.newWriter()
	}

	w.ResponseWriter.WriteHeader(w.status)
	if len(w.buf) == 0 {
		return nil
	}

	var err error
	if w.writer != nil {
		_, err = w.writer.Write(w.buf)
	} else {
		_, err = w.ResponseWriter.Write(w.buf)
	}
	w.buf = nil
	return err
}

func (w *compressWriter) newWriter() io.WriteCloser {
	switch w.enc {
	case encodingZstd:
		enc, err := zstd.NewWriter(w.ResponseWriter, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(w.level)))
		if err == nil {
			return enc
		}
	case encodingBrotli:
		return brotli.NewWriterLevel(w.ResponseWriter, w.level)
	}

	gz, err := gzip.NewWriterLevel(w.ResponseWriter, w.level)
	if err != nil {
		gz = gzip.NewWriter(w.ResponseWriter)
	}
	w.Header().Set("Content-Encoding", "gzip")
	return gz
}

func (w *compressWriter) Flush() {
	if !w.decided {
		_ = w.decide(false)
	}
	if f, ok := w.writer.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *compressWriter) close() {
	if !w.decided {
		if w.status == 0 {
			// handler wrote nothing; let the outer server pick the status
			return
		}
		_ = w.decide(false)
	}
	if w.writer != nil {
		_ = w.writer.Close()
	}
}

func compressible(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json") ||
		strings.HasPrefix(contentType, "application/yaml") ||
		strings.HasPrefix(contentType, "text/plain") ||
		strings.HasPrefix(contentType, "text/html")
}

// negotiate picks the best encoding the client accepts with a non-zero
// quality. Preference is zstd, then brotli, then gzip.
func negotiate(acceptEncoding string) encoding {
	accepted := make(map[string]float64)
	for part := range strings.SplitSeq(acceptEncoding, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				q = parsed
			}
		}

		if name == "*" {
			for _, n := range []string{"zstd", "br", "gzip"} {
				if _, set := accepted[n]; !set {
					accepted[n] = q
				}
			}
			continue
		}
		accepted[name] = q
	}

	switch {
	case accepted["zstd"] > 0:
		return encodingZstd
	case accepted["br"] > 0:
		return encodingBrotli
	case accepted["gzip"] > 0:
		return encodingGzip
	default:
		return encodingNone
	}
}

// SelectiveCompress compresses JSON and text responses of at least minSize
// bytes. Event streams pass through untouched.
func SelectiveCompress(minSize, level int) func(http.Handler) http.Handler {
	level = min(max(level, 1), 9)
	if minSize < 0 {
		minSize = 1024
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			enc := negotiate(r.Header.Get("Accept-Encoding"))
			if enc == encodingNone || strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Accept-Encoding")
			cw := &compressWriter{ResponseWriter: w, enc: enc, level: level, minSize: minSize}
			defer cw.close()

			next.ServeHTTP(cw, r)
		})
	}
}
