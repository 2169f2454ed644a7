// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import "strings"

// A Field is one request header line.
type Field struct {
	Name  string
	Value string
}

// A Header is an ordered list of request header fields. Names are
// matched case-insensitively; the order of fields is preserved on the
// wire.
type Header []Field

// Add appends a field to the header.
func (h *Header) Add(name, value string) {
	*h = append(*h, Field{Name: name, Value: value})
}

// Set replaces the value of the first field named name, removing any
// other fields with the same name. If no such field exists, one is
// appended.
func (h *Header) Set(name, value string) {
	i := h.index(name)
	if i < 0 {
		h.Add(name, value)
		return
	}
	(*h)[i].Value = value
	h.delFrom(name, i+1)
}

// Get returns the value of the first field named name, or the empty
// string.
func (h Header) Get(name string) string {
	if i := h.index(name); i >= 0 {
		return h[i].Value
	}
	return ""
}

// Has reports whether a field named name exists.
func (h Header) Has(name string) bool {
	return h.index(name) >= 0
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	h.delFrom(name, 0)
}

// Clone returns a copy of h.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := make(Header, len(h))
	copy(h2, h)
	return h2
}

func (h Header) index(name string) int {
	for i := range h {
		if strings.EqualFold(h[i].Name, name) {
			return i
		}
	}
	return -1
}

func (h *Header) delFrom(name string, start int) {
	fields := *h
	j := start
	for i := start; i < len(fields); i++ {
		if !strings.EqualFold(fields[i].Name, name) {
			fields[j] = fields[i]
			j++
		}
	}
	*h = fields[:j]
}
