package enginebridge

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOptions(t *testing.T) {
	logger := slog.Default()
	end, _ := NewPipe(nil)
	stderr := func(string) {}

	options := applyOptions([]Option{
		WithLogger(logger),
		WithTransport(end),
		WithFramePrefix("#game#"),
		WithRequestTimeout(5 * time.Second),
		WithPendingWarnThreshold(10),
		WithEngine("/opt/game/player", "--headless", "--port=0"),
		WithEnv(map[string]string{"A": "1"}),
		WithEnv(map[string]string{"B": "2"}),
		WithCwd("/srv/game"),
		WithStderr(stderr),
	})

	assert.Same(t, logger, options.Logger)
	assert.Equal(t, end, options.Transport)
	assert.Equal(t, "#game#", options.FramePrefix)
	require.NotNil(t, options.RequestTimeout)
	assert.Equal(t, 5*time.Second, *options.RequestTimeout)
	assert.Equal(t, 5*time.Second, options.ResolveRequestTimeout())
	assert.Equal(t, 10, options.ResolvePendingWarnThreshold())
	assert.Equal(t, "/opt/game/player", options.EnginePath)
	assert.Equal(t, []string{"--headless", "--port=0"}, options.EngineArgs)
	assert.Equal(t, []string{"A=1", "B=2"}, options.EngineEnv())
	assert.Equal(t, "/srv/game", options.Cwd)
	assert.NotNil(t, options.Stderr)
}

func TestApplyOptions_Defaults(t *testing.T) {
	t.Setenv("ENGINEBRIDGE_REQUEST_TIMEOUT", "")

	options := applyOptions(nil)

	assert.Nil(t, options.Logger)
	assert.Nil(t, options.Transport)
	assert.Nil(t, options.RequestTimeout)
	assert.Zero(t, options.ResolveRequestTimeout())
	assert.Equal(t, 1024, options.ResolvePendingWarnThreshold())
}

func TestWithRequestTimeout_ZeroOverridesEnv(t *testing.T) {
	t.Setenv("ENGINEBRIDGE_REQUEST_TIMEOUT", "30")

	assert.Equal(t, 30*time.Second, applyOptions(nil).ResolveRequestTimeout())
	assert.Zero(t, applyOptions([]Option{WithRequestTimeout(0)}).ResolveRequestTimeout())
}
