package config

import "testing"

func TestFromEnv(t *testing.T) {
	t.Setenv("SIMULARIUM_PORT", "9100")
	t.Setenv("SIMULARIUM_STORAGE_PATH", "/data/traj")
	t.Setenv("SIMULARIUM_CACHE_ENABLED", "false")
	t.Setenv("SIMULARIUM_MAX_CACHE_SIZE", "-1")
	t.Setenv("SIMULARIUM_PLAYBACK_FPS", "12.5")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != 9100 || cfg.StoragePath != "/data/traj" || cfg.CacheEnabled ||
		cfg.MaxCacheSize != UnboundedCacheSize || cfg.PlaybackFPS != 12.5 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.ParseWorkers != DefaultParseWorkers {
		t.Errorf("ParseWorkers = %d, want default", cfg.ParseWorkers)
	}
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SIMULARIUM_PORT", "eighty"},
		{"SIMULARIUM_PORT", "70000"},
		{"SIMULARIUM_CACHE_ENABLED", "maybe"},
		{"SIMULARIUM_MAX_CACHE_SIZE", "-2"},
		{"SIMULARIUM_JOB_QUEUE_SIZE", "0"},
		{"SIMULARIUM_PLAYBACK_FPS", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := FromEnv(); err == nil {
				t.Errorf("FromEnv accepted %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestIsKnownBlockType(t *testing.T) {
	for _, bt := range []int{0, 1, 2, 3} {
		if !IsKnownBlockType(bt) {
			t.Errorf("block type %d not known", bt)
		}
	}
	if IsKnownBlockType(4) || IsKnownBlockType(-1) {
		t.Error("unknown block type accepted")
	}
}
