package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"callcore/internal/telephony"
)

const sample = `
phones:
  - id: sim1
    technology: gsm
    radio:
      mode: network
      host: 127.0.0.1
      port: 5038
  - id: sim2
    technology: cdma
    radio:
      mode: simulated
post_dial:
  gsm_pause: 4s
disconnect_causes:
  dialing: congestion
api:
  port: 9090
  jwt_secret: s3cret
  users:
    - username: ops
      password_hash: "$2a$10$abcdefghijklmnopqrstuv"
history:
  enabled: true
  database:
    host: db
    database: callcore
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Phones) != 2 || cfg.Phones[1].Tech() != telephony.TechCDMA {
		t.Fatalf("phones = %+v", cfg.Phones)
	}
	if got := cfg.Phones[0].Radio.Address(); got != "127.0.0.1:5038" {
		t.Errorf("radio address = %q", got)
	}
	if cfg.Phones[0].Radio.ReconnectInterval != 5 {
		t.Errorf("reconnect interval default = %d, want 5", cfg.Phones[0].Radio.ReconnectInterval)
	}
	if got := cfg.PostDial.PauseFor(telephony.TechGSM); got != 4*time.Second {
		t.Errorf("gsm pause = %s, want 4s", got)
	}
	if got := cfg.PostDial.PauseFor(telephony.TechCDMA); got != 2*time.Second {
		t.Errorf("cdma pause default = %s, want 2s", got)
	}
	if got := cfg.API.Address(); got != "0.0.0.0:9090" {
		t.Errorf("api address = %q", got)
	}
	if cfg.API.TokenTTL != 12*time.Hour {
		t.Errorf("token ttl default = %s", cfg.API.TokenTTL)
	}
	if got := cfg.History.Database.DSN(); !strings.HasPrefix(got, ":@tcp(db:3306)/callcore?") {
		t.Errorf("dsn = %q", got)
	}
	if cfg.History.BatchSize != 100 {
		t.Errorf("batch size default = %d", cfg.History.BatchSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CALLCORE_JWT_SECRET", "from-env")
	t.Setenv("CALLCORE_DB_PASSWORD", "pw")
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.JWTSecret != "from-env" {
		t.Errorf("jwt secret = %q", cfg.API.JWTSecret)
	}
	if cfg.History.Database.Password != "pw" {
		t.Errorf("db password = %q", cfg.History.Database.Password)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no phones", "api: {port: 1}", "at least one phone"},
		{"duplicate id", "phones: [{id: a, radio: {mode: simulated}}, {id: a, radio: {mode: simulated}}]", "duplicate phone id"},
		{"bad technology", "phones: [{id: a, technology: lte, radio: {mode: simulated}}]", "unknown technology"},
		{"network without host", "phones: [{id: a}]", "needs host and port"},
		{"bad mode", "phones: [{id: a, radio: {mode: carrier-pigeon}}]", "unknown radio mode"},
		{"bad cause state", "phones: [{id: a, radio: {mode: simulated}}]\ndisconnect_causes: {idle: normal}", "disconnect_causes"},
		{"users without secret", "phones: [{id: a, radio: {mode: simulated}}]\napi: {users: [{username: x}]}", "jwt_secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadAndPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callcore.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CALLCORE_CONFIG", path)
	if Path() != path {
		t.Fatalf("Path() = %q, want %q", Path(), path)
	}
	if _, err := Load(Path()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}
