// mediadrop/config/config_test.go
package config_test // Use an external test package

import (
	"testing"
	"time"

	"mediadrop/config"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Run("loads default values correctly", func(t *testing.T) {
		// Ensure no env vars are lingering from other tests
		t.Setenv("MEDIADROP_PORT", "")
		t.Setenv("MEDIADROP_ARTIFACT_TTL", "")
		t.Setenv("MEDIADROP_SWEEP_INTERVAL", "")
		t.Setenv("MEDIADROP_EVICTION_POLICY", "")
		t.Setenv("MEDIADROP_NAME_STRATEGY", "")
		t.Setenv("MEDIADROP_THROTTLE_FREEMEM", "")

		cfg, err := config.Load()
		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "yt-dlp", cfg.YTDLPBin)
		assert.Equal(t, 5*time.Minute, cfg.ArtifactTTL)
		assert.Equal(t, time.Minute, cfg.SweepInterval)
		assert.Equal(t, config.EvictionSweep, cfg.EvictionPolicy)
		assert.Equal(t, config.NameSanitize, cfg.NameStrategy)
		assert.Equal(t, time.Duration(0), cfg.ExtractTimeout)
		assert.Equal(t, int64(200*1024*1024), cfg.ThrottleFreeMem)
	})

	t.Run("overrides defaults with environment variables", func(t *testing.T) {
		t.Setenv("MEDIADROP_PORT", "9999")
		t.Setenv("MEDIADROP_ARTIFACT_TTL", "90s")
		t.Setenv("MEDIADROP_EVICTION_POLICY", "serve-once")
		t.Setenv("MEDIADROP_SERVE_GRACE", "3s")
		t.Setenv("MEDIADROP_NAME_STRATEGY", "randomize")
		t.Setenv("MEDIADROP_THROTTLE_FREEMEM", "50MB")

		cfg, err := config.Load()
		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		assert.Equal(t, "9999", cfg.Port)
		assert.Equal(t, 90*time.Second, cfg.ArtifactTTL)
		assert.Equal(t, config.EvictionServeOnce, cfg.EvictionPolicy)
		assert.Equal(t, 3*time.Second, cfg.ServeGrace)
		assert.Equal(t, config.NameRandomize, cfg.NameStrategy)
		assert.Equal(t, int64(50*1024*1024), cfg.ThrottleFreeMem)
	})

	t.Run("rejects unknown eviction policy", func(t *testing.T) {
		t.Setenv("MEDIADROP_EVICTION_POLICY", "lru")

		_, err := config.Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "eviction policy")
	})

	t.Run("rejects malformed extra args", func(t *testing.T) {
		t.Setenv("MEDIADROP_EVICTION_POLICY", "")
		t.Setenv("MEDIADROP_EXTRA_ARGS", `--cookies "unterminated`)

		_, err := config.Load()
		assert.Error(t, err)
	})
}

func TestExtraYTDLPArgs(t *testing.T) {
	cfg := &config.Config{ExtraArgs: `--no-playlist --user-agent "Media Drop/1.0"`}
	args, err := cfg.ExtraYTDLPArgs()
	assert.NoError(t, err)
	assert.Equal(t, []string{"--no-playlist", "--user-agent", "Media Drop/1.0"}, args)

	cfg = &config.Config{}
	args, err = cfg.ExtraYTDLPArgs()
	assert.NoError(t, err)
	assert.Nil(t, args)
}
