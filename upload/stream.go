// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package upload serializes a request body made of in-memory and file
// elements into a fixed-size buffer for transmission.
package upload

import (
	"errors"
	"io"

	"github.com/gogama/httptxn/neterr"
	"github.com/gogama/httptxn/request"
	"github.com/spf13/afero"
)

// DefaultBufferSize is the buffer capacity used when New is given a
// non-positive size.
const DefaultBufferSize = 16 * 1024

// A Stream walks the elements of an upload body in order, keeping up to
// one buffer's worth of serialized bytes ready to be written.
//
// The typical use is a loop of FillBuffer, a write of Buf, and
// DidConsume with the number of bytes written. Position never decreases
// except through Reset, and never exceeds Size.
//
// A file element whose file cannot be opened contributes zero bytes,
// both to Size and to the serialized body.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	fs       afero.Fs
	elements []request.Element
	sizes    []int64
	size     int64
	position int64

	buf []byte
	n   int

	index      int
	elemOffset int64
	file       afero.File
}

// New returns a Stream over data, reading file elements from fs. A nil
// fs means the operating system file system.
func New(fs afero.Fs, data *request.UploadData, bufferSize int) *Stream {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	s := &Stream{
		fs:       fs,
		elements: data.Elements(),
		buf:      make([]byte, bufferSize),
	}
	s.sizes = make([]int64, len(s.elements))
	for i, e := range s.elements {
		s.sizes[i] = elementSize(fs, e)
		s.size += s.sizes[i]
	}
	return s
}

// Size returns the total number of bytes the stream serializes.
func (s *Stream) Size() int64 {
	return s.size
}

// Position returns the number of bytes consumed so far.
func (s *Stream) Position() int64 {
	return s.position
}

// Buf returns the buffered bytes not yet consumed. The returned slice
// is only valid until the next call to FillBuffer, DidConsume, or
// Reset.
func (s *Stream) Buf() []byte {
	return s.buf[:s.n]
}

// EOF reports whether every byte of the body has been consumed.
func (s *Stream) EOF() bool {
	return s.position >= s.size
}

// FillBuffer serializes elements into the free space of the buffer
// until it is full or every element has been serialized.
//
// FillBuffer returns an error wrapping neterr.UploadFileChanged if a
// file produces fewer bytes than it had when the stream was created.
func (s *Stream) FillBuffer() error {
	for s.n < len(s.buf) && s.index < len(s.elements) {
		e := s.elements[s.index]
		remaining := s.sizes[s.index] - s.elemOffset
		if remaining <= 0 {
			s.advance()
			continue
		}
		free := s.buf[s.n:]
		if int64(len(free)) > remaining {
			free = free[:remaining]
		}

		var m int
		if e.Type() == request.Bytes {
			m = copy(free, e.Bytes()[s.elemOffset:])
		} else {
			var err error
			if m, err = s.readFile(e, free); err != nil {
				return err
			}
		}
		s.n += m
		s.elemOffset += int64(m)
	}
	return nil
}

// DidConsume removes the first n buffered bytes, advancing Position,
// and refills the buffer.
func (s *Stream) DidConsume(n int) error {
	if n < 0 || n > s.n {
		panic("httptxn/upload: consumed more than buffered")
	}
	copy(s.buf, s.buf[n:s.n])
	s.n -= n
	s.position += int64(n)
	return s.FillBuffer()
}

// Reset rewinds the stream to the first element for retransmission and
// refills the buffer. Position returns to zero.
func (s *Stream) Reset() error {
	s.closeFile()
	s.n = 0
	s.index = 0
	s.elemOffset = 0
	s.position = 0
	return s.FillBuffer()
}

// Close releases any open file.
func (s *Stream) Close() error {
	return s.closeFile()
}

func (s *Stream) readFile(e request.Element, p []byte) (int, error) {
	if s.file == nil {
		f, err := s.fs.Open(e.Path())
		if err != nil {
			return 0, neterr.Wrap(neterr.UploadFileChanged, err)
		}
		if _, err = f.Seek(e.Offset()+s.elemOffset, io.SeekStart); err != nil {
			_ = f.Close()
			return 0, neterr.Wrap(neterr.UploadFileChanged, err)
		}
		s.file = f
	}
	m, err := io.ReadFull(s.file, p)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return m, neterr.Wrap(neterr.UploadFileChanged, err)
	}
	if err != nil {
		return m, neterr.Wrap(neterr.Failed, err)
	}
	return m, nil
}

func (s *Stream) advance() {
	s.closeFile()
	s.index++
	s.elemOffset = 0
}

func (s *Stream) closeFile() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func elementSize(fs afero.Fs, e request.Element) int64 {
	if e.Type() == request.Bytes {
		return int64(len(e.Bytes()))
	}
	fi, err := fs.Stat(e.Path())
	if err != nil || fi.IsDir() {
		return 0
	}
	avail := fi.Size() - e.Offset()
	if avail < 0 {
		avail = 0
	}
	if e.Length() == request.ToEOF || e.Length() > avail {
		return avail
	}
	return e.Length()
}
