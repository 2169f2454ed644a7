// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"errors"
	"io"
)

const badBodyTypeMsg = "httptxn/request: invalid type (for body use nil, " +
	"string, []byte, io.Reader, io.ReadCloser or *UploadData)"

// BodyUpload converts a generic body parameter into upload data for use
// as a request body.
//
// The body parameter may be nil, or it may be a string, []byte,
// io.Reader, io.ReadCloser, or *UploadData. The conversion logic is:
//
// • If body is nil, or an empty string or slice, nil and no error is
// returned.
//
// • If body is *UploadData, body itself and no error is returned.
//
// • If body is a string or []byte, upload data with a single Bytes
// element holding a copy of body is returned.
//
// • If body is an io.Reader or io.ReadCloser, the whole contents of the
// reader are read (and the reader closed if it implements Closer) into
// a single Bytes element. If reading or closing fails, nil and the error
// are returned.
//
// • If body is any other type, nil and an error is returned.
func BodyUpload(body interface{}) (*UploadData, error) {
	var b []byte
	switch x := body.(type) {
	case nil:
		return nil, nil
	case *UploadData:
		return x, nil
	case string:
		b = []byte(x)
	case []byte:
		b = x
	case io.ReadCloser:
		var err error
		b, err = io.ReadAll(x)
		if err != nil {
			return nil, err
		}
		if err = x.Close(); err != nil {
			return nil, err
		}
	case io.Reader:
		return BodyUpload(io.NopCloser(x))
	default:
		return nil, errors.New(badBodyTypeMsg)
	}
	if len(b) == 0 {
		return nil, nil
	}
	return NewUploadData(BytesElement(b)), nil
}
