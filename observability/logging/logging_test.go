package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMaskFieldRedactsSecrets(t *testing.T) {
	if got := MaskField("authorization", "Bearer abc").Value.String(); got != RedactedValue {
		t.Fatalf("expected authorization to be redacted, got %q", got)
	}
	if got := MaskField("position", "cdp1xyz").Value.String(); got != "cdp1xyz" {
		t.Fatalf("expected position to pass through, got %q", got)
	}
	if got := MaskField("token", "").Value.String(); got != "" {
		t.Fatalf("expected empty value to stay empty, got %q", got)
	}
}

func TestSetupFileWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cdpd.log")
	logger, closer := SetupFile("cdpd", "test", FileOptions{Path: path, MaxSizeMB: 1})
	logger.Info("position opened", "position", "cdp1abc")
	if err := closer.Close(); err != nil {
		t.Fatalf("close log file: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(raw)
	for _, want := range []string{`"message":"position opened"`, `"service":"cdpd"`, `"env":"test"`, `"severity":"INFO"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %s", line, want)
		}
	}
}
