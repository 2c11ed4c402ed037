package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{
		"platform": {"token": "tok", "command_prefix": "cc!", "owner_user_ids": [1]},
		"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}, "chat": {"enabled": false, "min_level": "", "rate_per_sec": 0}},
		"storage": {"path": "bot.db", "busy_timeout": "5s"},
		"scheduler": {"poll_interval": "10s"}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Platform.Token != "tok" || cfg.Platform.CommandPrefix != "cc!" {
		t.Errorf("platform = %+v", cfg.Platform)
	}
	if cfg.Scheduler.PollInterval != "10s" {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
}

func TestParseYAMLGoesThroughStrictDecoder(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
platform:
  token: tok
  owner_user_ids: [7]
storage:
  path: bot.db
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Platform.Token != "tok" || len(cfg.Platform.OwnerUserIDs) != 1 || cfg.Platform.OwnerUserIDs[0] != 7 {
		t.Errorf("platform = %+v", cfg.Platform)
	}
	if cfg.Storage.Path != "bot.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	jsonPath := writeConfig(t, "config.json", `{"platform": {"token": "tok", "owner_user_ids": []}, "typo_section": {}}`)
	if _, err := NewManager(jsonPath).Parse(); err == nil {
		t.Error("unknown JSON field accepted")
	}

	yamlPath := writeConfig(t, "config.yaml", "platform:\n  token: tok\n  owner_user_ids: []\ntypo_section: {}\n")
	if _, err := NewManager(yamlPath).Parse(); err == nil {
		t.Error("unknown YAML field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"platform": {"token": "t", "owner_user_ids": []}} {"again": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Error("concatenated JSON accepted")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		def     time.Duration
		want    time.Duration
		wantErr bool
	}{
		{"", time.Minute, time.Minute, false},
		{"  ", time.Minute, time.Minute, false},
		{"0s", time.Minute, time.Minute, false},
		{"45s", time.Minute, 45 * time.Second, false},
		{"-1s", time.Minute, 0, true},
		{"soon", time.Minute, 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationOrDefault("test.field", tc.raw, tc.def)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: no error", tc.raw)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%q = %v, %v; want %v", tc.raw, got, err, tc.want)
		}
	}
}
