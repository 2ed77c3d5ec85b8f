package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func withEnv(vals map[string]string, f func()) {
	orig := envFunc
	envFunc = func(key string) (string, bool) {
		v, ok := vals[key]
		return v, ok
	}
	defer func() { envFunc = orig }()
	f()
}

func TestParseLevel(t *testing.T) {
	lv, ok := parseLevel("debug")
	assert.True(t, ok)
	assert.Equal(t, zapcore.DebugLevel, lv)

	lv, ok = parseLevel("WARN")
	assert.True(t, ok)
	assert.Equal(t, zapcore.WarnLevel, lv)

	_, ok = parseLevel("nope")
	assert.False(t, ok)
}

func TestModuleLevelFallback(t *testing.T) {
	withEnv(map[string]string{
		"LOG_LEVEL": "warn",
	}, func() {
		assert.Equal(t, zapcore.WarnLevel, moduleLevel([]string{"Coordinator"}))
	})
}

func TestModuleLevelSpecificWins(t *testing.T) {
	withEnv(map[string]string{
		"LOG_LEVEL":                        "warn",
		"LOG_LEVEL__COORDINATOR":           "info",
		"LOG_LEVEL__COORDINATOR__LIVENESS": "debug",
	}, func() {
		assert.Equal(t, zapcore.DebugLevel, moduleLevel([]string{"Coordinator", "Liveness"}))
		assert.Equal(t, zapcore.InfoLevel, moduleLevel([]string{"Coordinator"}))
		assert.Equal(t, zapcore.WarnLevel, moduleLevel([]string{"Observer"}))
	})
}

func TestModuleLevelDefault(t *testing.T) {
	withEnv(map[string]string{}, func() {
		assert.Equal(t, zapcore.InfoLevel, moduleLevel([]string{"Observer"}))
	})
}
