// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

// An ElementType identifies the kind of an upload Element.
type ElementType int

const (
	// Bytes identifies an in-memory element.
	Bytes ElementType = iota
	// File identifies a byte range of a file.
	File
)

// ToEOF is the file element length meaning "up to the end of the file".
const ToEOF int64 = -1

// An Element is one segment of an upload body: either an immutable
// in-memory byte buffer, or a byte range of a file. Elements are
// read-only once constructed.
type Element struct {
	typ    ElementType
	bytes  []byte
	path   string
	offset int64
	length int64
}

// BytesElement returns an element holding a private copy of b.
func BytesElement(b []byte) Element {
	c := make([]byte, len(b))
	copy(c, b)
	return Element{typ: Bytes, bytes: c}
}

// FileElement returns an element covering length bytes of the file at
// path, starting at offset. A length of ToEOF covers the rest of the
// file.
func FileElement(path string, offset, length int64) Element {
	if offset < 0 {
		panic("httptxn/request: negative file offset")
	}
	if length < ToEOF {
		panic("httptxn/request: invalid file length")
	}
	return Element{typ: File, path: path, offset: offset, length: length}
}

// Type returns the element type.
func (e Element) Type() ElementType { return e.typ }

// Bytes returns the in-memory data of a Bytes element. The returned
// slice must not be modified.
func (e Element) Bytes() []byte { return e.bytes }

// Path returns the file path of a File element.
func (e Element) Path() string { return e.path }

// Offset returns the starting offset of a File element.
func (e Element) Offset() int64 { return e.offset }

// Length returns the declared length of a File element, or ToEOF.
func (e Element) Length() int64 { return e.length }

// UploadData is the ordered list of elements making up a request
// body.
type UploadData struct {
	elements []Element
}

// NewUploadData returns upload data consisting of the given elements.
func NewUploadData(elements ...Element) *UploadData {
	u := &UploadData{}
	u.elements = append(u.elements, elements...)
	return u
}

// AppendBytes appends a copy of b as a new element.
func (u *UploadData) AppendBytes(b []byte) {
	u.elements = append(u.elements, BytesElement(b))
}

// AppendFile appends a file range as a new element.
func (u *UploadData) AppendFile(path string, offset, length int64) {
	u.elements = append(u.elements, FileElement(path, offset, length))
}

// Elements returns the element list. The returned slice must not be
// modified.
func (u *UploadData) Elements() []Element {
	if u == nil {
		return nil
	}
	return u.elements
}
