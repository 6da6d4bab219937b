package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvConfig_PrefixedLookupsWithDefaults(t *testing.T) {
	t.Setenv("OPTEST_NAME", "custom")
	t.Setenv("OPTEST_COUNT", "7")
	t.Setenv("OPTEST_WAIT", "250ms")
	t.Setenv("OPTEST_ON", "true")

	env := NewEnvConfig("OPTEST")
	assert.Equal(t, "custom", env.GetString("NAME", "fallback"))
	assert.Equal(t, "fallback", env.GetString("MISSING", "fallback"))
	assert.Equal(t, 7, env.GetInt("COUNT", 1))
	assert.Equal(t, 1, env.GetInt("MISSING", 1))
	assert.Equal(t, 250*time.Millisecond, env.GetDuration("WAIT", time.Second))
	assert.True(t, env.GetBool("ON", false))
}

func TestEnvConfig_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("OPTEST_COUNT", "not-a-number")
	t.Setenv("OPTEST_WAIT", "soon")

	env := NewEnvConfig("OPTEST")
	assert.Equal(t, 5, env.GetInt("COUNT", 5))
	assert.Equal(t, time.Second, env.GetDuration("WAIT", time.Second))
}

func TestLoadDefaults_BuiltInBaseline(t *testing.T) {
	d := LoadDefaults()
	assert.Equal(t, 3, d.FetchRetries)
	assert.Equal(t, 200*time.Millisecond, d.FetchBackoffBase)
	assert.Equal(t, 0, d.MutationRetries)
}

func TestLoadDefaults_EnvOverride(t *testing.T) {
	t.Setenv("OPERATION_FETCH_RETRIES", "5")
	t.Setenv("OPERATION_FETCH_BACKOFF_BASE", "50ms")

	d := LoadDefaults()
	assert.Equal(t, 5, d.FetchRetries)
	assert.Equal(t, 50*time.Millisecond, d.FetchBackoffBase)
}
