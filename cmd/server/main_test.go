package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFinish(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	assert.Equal(t, 0, finish(log, nil))
	assert.Equal(t, 0, logs.Len())

	assert.Equal(t, 1, finish(log, errors.New("listen: address in use")))
	entries := logs.FilterMessage("server stopped").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	}
}
