package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xorcare/pointer"

	"github.com/itstheanurag/runbox/internal/verdict"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("WORKSPACE_ROOT", "/tmp/runbox-test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "/tmp/runbox-test", cfg.Executor.WorkspaceRoot)
	assert.Equal(t, 10*time.Second, cfg.Executor.DefaultTimeLimit)
	assert.Equal(t, 30*time.Second, cfg.Executor.CompileTimeLimit)
	assert.Equal(t, time.Minute, cfg.Executor.MaxTimeLimit)
	assert.Equal(t, 1<<20, cfg.Executor.MaxOutputBytes)
	assert.Equal(t, verdict.PolicyDiagnostic, cfg.Executor.Policy)
	assert.Nil(t, cfg.Executor.LanguagesFile)
	assert.Nil(t, cfg.Db)
	assert.Nil(t, cfg.Docker)
	assert.Equal(t, BackendLocal, cfg.Backend())
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DEFAULT_TIME_LIMIT_MS", "2500")
	t.Setenv("DIAGNOSTIC_POLICY", "exit_code")
	t.Setenv("LANGUAGES_FILE", "/etc/runbox/languages.yaml")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_NAME", "audit")
	t.Setenv("SANDBOX_BACKEND", "docker")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("RATE_IP_RPS", "2.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 2500*time.Millisecond, cfg.Executor.DefaultTimeLimit)
	assert.Equal(t, verdict.PolicyExitCode, cfg.Executor.Policy)
	assert.Equal(t, pointer.String("/etc/runbox/languages.yaml"), cfg.Executor.LanguagesFile)
	require.NotNil(t, cfg.Db)
	assert.Equal(t, "audit", cfg.Db.Name)
	assert.Equal(t, 5432, cfg.Db.Port)
	require.NotNil(t, cfg.Docker)
	assert.Equal(t, BackendDocker, cfg.Backend())
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 2.5, cfg.Limiter.IPRPS)
}

func TestLoadConfigErrors(t *testing.T) {
	cases := map[string][2]string{
		"bad int":      {"WORKERS", "many"},
		"zero workers": {"WORKERS", "0"},
		"bad policy":   {"DIAGNOSTIC_POLICY", "strict"},
		"bad backend":  {"SANDBOX_BACKEND", "firecracker"},
		"bad bool":     {"DB_ENABLED", "maybe"},
		"default>max":  {"DEFAULT_TIME_LIMIT_MS", "120000"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
