package common_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoting/internal/common"
)

func TestOptionLogger(t *testing.T) {
	var options struct {
		Logger zerolog.Logger
	}
	logger := zerolog.New(nil).Level(zerolog.WarnLevel)
	require.NoError(t, common.OptionLogger(logger)(&options))
	assert.Equal(t, zerolog.WarnLevel, options.Logger.GetLevel())
}

func TestSetUnknownField(t *testing.T) {
	var options struct {
		Logger zerolog.Logger
	}
	err := common.Set(&options, "Missing", 1)
	assert.ErrorIs(t, err, common.ErrBadOption)
}
