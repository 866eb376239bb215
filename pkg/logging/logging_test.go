package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, cfg := range []Config{
		{},
		{Level: "debug", Pretty: true},
		{Level: "warn"},
	} {
		logger, zapLogger, err := New(cfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.NotNil(t, zapLogger)
	}

	_, _, err := New(Config{Level: "loud"})
	require.Error(t, err)
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().WithField("k", "v").Info("discarded")
	})
}
