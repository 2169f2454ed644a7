// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httptxn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvents(t *testing.T) {
	assert.Len(t, eventNames, numEvents)
	assert.Len(t, Events(), numEvents)
	events := Events()
	for i, evt := range events {
		assert.Equal(t, Event(i), evt)
	}
}

func TestEvent_Name(t *testing.T) {
	assert.Equal(t, "BeforeStart", BeforeStart.Name())
	assert.Equal(t, "AfterProxyResolved", AfterProxyResolved.Name())
	assert.Equal(t, "AfterAdmission", AfterAdmission.Name())
	assert.Equal(t, "BeforeSend", BeforeSend.Name())
	assert.Equal(t, "AfterRestart", AfterRestart.Name())
	assert.Equal(t, "AfterHeaders", AfterHeaders.Name())
	assert.Equal(t, "AfterBodyEOF", AfterBodyEOF.Name())
	assert.Equal(t, "AfterEnd", AfterEnd.Name())
	assert.Equal(t, "AfterEnd", AfterEnd.String())
}
