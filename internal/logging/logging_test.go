package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr error
		enabled zapcore.Level
	}{
		{"defaults", "", "", nil, zapcore.InfoLevel},
		{"debug console", "debug", "console", nil, zapcore.DebugLevel},
		{"warn json", "warn", "json", nil, zapcore.WarnLevel},
		{"bad level", "loud", "", types.ErrLogLevelUnknown, 0},
		{"bad format", "info", "xml", types.ErrLogFormatUnknown, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.format)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.enabled))
			assert.False(t, logger.Core().Enabled(tt.enabled-1))
		})
	}
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}

func TestProgressSink_ThrottlesAdvance(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewProgressSink(zap.New(core))

	sink.SetTotal(100)
	for i := 0; i < 100; i++ {
		sink.Advance(1)
	}
	assert.Equal(t, 100, sink.Done())

	// One line for SetTotal and one per tenth.
	entries := logs.FilterMessage("progress").All()
	require.Len(t, entries, 11)
	last := entries[len(entries)-1].ContextMap()
	assert.Equal(t, int64(100), last["done"])
	assert.Equal(t, int64(1), last["phase"])

	sink.SetTotal(3)
	sink.Advance(3)
	sink.Info("copying card sets")
	assert.Equal(t, 3, sink.Done())

	info := logs.FilterMessage("copying card sets").All()
	require.Len(t, info, 1)
	assert.Equal(t, int64(2), info[0].ContextMap()["phase"])
}

func TestProgressSink_ZeroTotal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewProgressSink(zap.New(core))

	sink.SetTotal(0)
	sink.Advance(0)
	assert.Equal(t, 2, logs.Len())
}
