package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "", want: LevelWarning},
		{in: "none", want: LevelNone},
		{in: "fatal", want: LevelFatal},
		{in: "ERROR", want: LevelError},
		{in: " warning ", want: LevelWarning},
		{in: "info", want: LevelInfo},
		{in: "debug", want: LevelDebug},
		{in: "4", want: LevelInfo},
		{in: "0", want: LevelNone},
		{in: "9", wantErr: true},
		{in: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "warning", LevelWarning.String())
	assert.Equal(t, "Level(7)", Level(7).String())
}

func TestNewZapLevels(t *testing.T) {
	zl, err := NewZap(LevelInfo)
	require.NoError(t, err)
	assert.True(t, zl.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, zl.Core().Enabled(zapcore.DebugLevel))

	zl, err = NewZap(LevelError)
	require.NoError(t, err)
	assert.False(t, zl.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, zl.Core().Enabled(zapcore.ErrorLevel))

	zl, err = NewZap(LevelNone)
	require.NoError(t, err)
	assert.False(t, zl.Core().Enabled(zapcore.FatalLevel))
}

func TestNewLogrVerbosity(t *testing.T) {
	log, zl, err := New(LevelDebug)
	require.NoError(t, err)
	require.NotNil(t, zl)
	assert.True(t, log.V(1).Enabled())

	log, _, err = New(LevelWarning)
	require.NoError(t, err)
	assert.False(t, log.V(1).Enabled())
	assert.False(t, log.Enabled())
}
