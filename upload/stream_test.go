// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package upload

import (
	"strings"
	"testing"

	"github.com/gogama/httptxn/neterr"
	"github.com/gogama/httptxn/request"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memFs(t *testing.T, files map[string]string) afero.Fs {
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0644))
	}
	return fs
}

// drain consumes the whole stream, chunk bytes at a time, checking
// that position is monotone and bounded by size.
func drain(t *testing.T, s *Stream, chunk int) string {
	var sb strings.Builder
	require.NoError(t, s.FillBuffer())
	last := s.Position()
	for !s.EOF() {
		buf := s.Buf()
		require.NotEmpty(t, buf, "stream stalled at %d of %d", s.Position(), s.Size())
		n := len(buf)
		if n > chunk {
			n = chunk
		}
		sb.Write(buf[:n])
		require.NoError(t, s.DidConsume(n))
		assert.GreaterOrEqual(t, s.Position(), last)
		assert.LessOrEqual(t, s.Position(), s.Size())
		last = s.Position()
	}
	return sb.String()
}

func TestStream(t *testing.T) {
	fs := memFs(t, map[string]string{
		"/a.txt": "0123456789",
		"/b.txt": "abcdefghij",
	})

	testCases := []struct {
		name     string
		elements []request.Element
		want     string
	}{
		{"empty", nil, ""},
		{"bytes", []request.Element{request.BytesElement([]byte("hello"))}, "hello"},
		{"file whole", []request.Element{request.FileElement("/a.txt", 0, request.ToEOF)}, "0123456789"},
		{"file range", []request.Element{request.FileElement("/a.txt", 2, 3)}, "234"},
		{"file length beyond end", []request.Element{request.FileElement("/a.txt", 8, 100)}, "89"},
		{"file offset beyond end", []request.Element{request.FileElement("/a.txt", 50, 5)}, ""},
		{"missing file", []request.Element{
			request.BytesElement([]byte("x")),
			request.FileElement("/missing", 0, request.ToEOF),
			request.BytesElement([]byte("y")),
		}, "xy"},
		{"mixed", []request.Element{
			request.BytesElement([]byte("<")),
			request.FileElement("/a.txt", 5, request.ToEOF),
			request.FileElement("/b.txt", 0, 4),
			request.BytesElement([]byte(">")),
		}, "<56789abcd>"},
	}
	for _, testCase := range testCases {
		for _, bufSize := range []int{1, 3, 7, DefaultBufferSize} {
			for _, chunk := range []int{1, 2, 1 << 20} {
				t.Run(testCase.name, func(t *testing.T) {
					s := New(fs, request.NewUploadData(testCase.elements...), bufSize)
					defer s.Close()
					assert.Equal(t, int64(len(testCase.want)), s.Size())
					assert.Equal(t, testCase.want, drain(t, s, chunk))
					assert.Equal(t, s.Size(), s.Position())
				})
			}
		}
	}
}

func TestStream_Reset(t *testing.T) {
	fs := memFs(t, map[string]string{"/f": "file-data"})
	data := request.NewUploadData(request.BytesElement([]byte("bytes:")), request.FileElement("/f", 0, request.ToEOF))
	s := New(fs, data, 4)
	defer s.Close()

	require.NoError(t, s.FillBuffer())
	require.NoError(t, s.DidConsume(3))
	require.NoError(t, s.DidConsume(len(s.Buf())))
	require.NoError(t, s.DidConsume(2))
	assert.Equal(t, int64(9), s.Position())

	require.NoError(t, s.Reset())
	assert.Equal(t, int64(0), s.Position())
	assert.Equal(t, "bytes:file-data", drain(t, s, 5))
}

func TestStream_FileShrank(t *testing.T) {
	fs := memFs(t, map[string]string{"/f": "0123456789"})
	s := New(fs, request.NewUploadData(request.FileElement("/f", 0, request.ToEOF)), 64)
	defer s.Close()
	require.NoError(t, afero.WriteFile(fs, "/f", []byte("01234"), 0644))

	err := s.FillBuffer()
	assert.ErrorIs(t, err, neterr.UploadFileChanged)
}

func TestStream_FileRemoved(t *testing.T) {
	fs := memFs(t, map[string]string{"/f": "0123456789"})
	s := New(fs, request.NewUploadData(request.FileElement("/f", 0, request.ToEOF)), 64)
	require.NoError(t, fs.Remove("/f"))

	assert.ErrorIs(t, s.FillBuffer(), neterr.UploadFileChanged)
}

func TestStream_DidConsumeTooMuch(t *testing.T) {
	s := New(afero.NewMemMapFs(), request.NewUploadData(request.BytesElement([]byte("ab"))), 0)
	require.NoError(t, s.FillBuffer())
	assert.PanicsWithValue(t, "httptxn/upload: consumed more than buffered", func() { _ = s.DidConsume(3) })
}

func TestNew_NilData(t *testing.T) {
	s := New(nil, nil, 0)
	assert.Equal(t, int64(0), s.Size())
	assert.True(t, s.EOF())
	assert.NoError(t, s.FillBuffer())
	assert.Empty(t, s.Buf())
}
