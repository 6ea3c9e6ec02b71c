package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callcore.log")
	closer, err := Setup(Options{Level: "debug", ConsoleLevel: "panic", FileLevel: "info", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(Discard)

	log := For("tracker").WithField("phone", "sim0")
	log.Info("dial issued")
	log.Debug("below the file level")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "dial issued") || !strings.Contains(out, "component=tracker") || !strings.Contains(out, "phone=sim0") {
		t.Errorf("log file missing entry or fields: %q", out)
	}
	if strings.Contains(out, "below the file level") {
		t.Errorf("debug entry written to info-level file: %q", out)
	}
}

func TestSetupRejectsBadLevel(t *testing.T) {
	if _, err := Setup(Options{Level: "chatty"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
