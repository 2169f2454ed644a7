// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

// maxChunkLine bounds a chunk-size or trailer line.
const maxChunkLine = 4096

// ErrChunkFormat indicates a malformed chunked body.
var ErrChunkFormat = errors.New("httptxn/wire: invalid chunk format")

// A ChunkedDecoder decodes a Transfer-Encoding: chunked body
// incrementally. Input may be split at any byte boundary across calls
// to Filter.
type ChunkedDecoder struct {
	remaining int64
	needCRLF  bool
	lastChunk bool
	eof       bool
	line      []byte
	afterEOF  int
}

// Filter decodes buf in place. On return the first n bytes of buf hold
// payload data; chunk framing, extensions, and trailers are removed.
// Filter returns n == 0 with a nil error when buf held only framing,
// in which case more input is needed unless EOF reports true.
func (d *ChunkedDecoder) Filter(buf []byte) (int, error) {
	out := buf
	n := 0
	for len(buf) > 0 {
		if d.eof {
			d.afterEOF += len(buf)
			break
		}
		if d.remaining > 0 {
			m := len(buf)
			if int64(m) > d.remaining {
				m = int(d.remaining)
			}
			copy(out[n:], buf[:m])
			n += m
			d.remaining -= int64(m)
			buf = buf[m:]
			if d.remaining == 0 {
				d.needCRLF = true
			}
			continue
		}
		consumed, err := d.scanLine(buf)
		if err != nil {
			return n, err
		}
		buf = buf[consumed:]
	}
	return n, nil
}

// EOF reports whether the terminating chunk and trailers have been
// decoded.
func (d *ChunkedDecoder) EOF() bool {
	return d.eof
}

// BytesAfterEOF returns the number of bytes seen after the end of the
// chunked body. A non-zero value means the connection carries data
// that does not belong to this response.
func (d *ChunkedDecoder) BytesAfterEOF() int {
	return d.afterEOF
}

func (d *ChunkedDecoder) scanLine(buf []byte) (int, error) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		if len(d.line)+len(buf) > maxChunkLine {
			return 0, ErrChunkFormat
		}
		d.line = append(d.line, buf...)
		return len(buf), nil
	}
	if len(d.line)+i > maxChunkLine {
		return 0, ErrChunkFormat
	}
	line := append(d.line, buf[:i]...)
	d.line = line[:0]
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return i + 1, d.processLine(string(line))
}

func (d *ChunkedDecoder) processLine(line string) error {
	switch {
	case d.needCRLF:
		if line != "" {
			return ErrChunkFormat
		}
		d.needCRLF = false
	case d.lastChunk:
		if line == "" {
			d.eof = true
		}
	default:
		size, err := parseChunkSize(line)
		if err != nil {
			return err
		}
		if size == 0 {
			d.lastChunk = true
		} else {
			d.remaining = size
		}
	}
	return nil
}

func parseChunkSize(line string) (int64, error) {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, ErrChunkFormat
	}
	n, err := strconv.ParseInt(line, 16, 64)
	if err != nil || n < 0 {
		return 0, ErrChunkFormat
	}
	return n, nil
}
