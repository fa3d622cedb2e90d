package turso

import "testing"

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		remote bool
		dsn    string
	}{
		{"local file", Config{URL: "file:/tmp/x.db"}, false, "file:/tmp/x.db"},
		{"remote with token", Config{URL: "libsql://db.turso.io", AuthToken: "tok"}, true, "libsql://db.turso.io?authToken=tok"},
		{"https remote", Config{URL: "https://db.turso.io", AuthToken: "tok"}, true, "https://db.turso.io?authToken=tok"},
		{"local ignores token", Config{URL: "file:x.db", AuthToken: "tok"}, false, "file:x.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.IsRemote(); got != tt.remote {
				t.Errorf("IsRemote() = %v, want %v", got, tt.remote)
			}
			if got := tt.cfg.DSN(); got != tt.dsn {
				t.Errorf("DSN() = %q, want %q", got, tt.dsn)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("SPLANGO_DATABASE_URL", "libsql://db.turso.io")
	t.Setenv("SPLANGO_AUTH_TOKEN", "")
	if _, err := LoadConfig(); err == nil {
		t.Error("expected an error for a remote URL without token")
	}

	t.Setenv("SPLANGO_DATABASE_URL", "")
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.IsRemote() {
		t.Errorf("default database should be local, got %q", cfg.URL)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Error("nil is not a violation")
	}
	if !isUniqueViolation(errString("UNIQUE constraint failed: subjects.identity")) {
		t.Error("expected violation to be detected")
	}
	if !IsStreamError(errString("stream not found")) {
		t.Error("expected stream error to be detected")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
