package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	l, err := New("debug", true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New(" WARN ", false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	_, err = New("loud", false)
	assert.Error(t, err)
}

func TestBase(t *testing.T) {
	t.Cleanup(func() { SetBase(nil) })

	assert.NotNil(t, Base())

	l := zap.NewExample()
	SetBase(l)
	assert.Same(t, l, Base())
	assert.Same(t, l, Or(nil))

	other := zap.NewNop()
	assert.Same(t, other, Or(other))

	SetBase(nil)
	assert.NotNil(t, Base())
}
