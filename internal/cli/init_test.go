package cli

import (
	"os"
	"path/filepath"
	"testing"

	"estudio/internal/config"
	applog "estudio/internal/log"
)

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("ESTUDIO_CLI_TEST=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ESTUDIO_CLI_TEST", "")
	os.Unsetenv("ESTUDIO_CLI_TEST")

	LoadEnvFile(path)
	if got := os.Getenv("ESTUDIO_CLI_TEST"); got != "from-file" {
		t.Fatalf("ESTUDIO_CLI_TEST = %q", got)
	}

	// Missing files are ignored.
	LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
}

func TestSetupLogger(t *testing.T) {
	logger, err := SetupLogger(&config.Config{LogLevel: "debug", LogFormat: "json"}, applog.ComponentCLI)
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	if logger.Component() != applog.ComponentCLI {
		t.Fatalf("component = %q", logger.Component())
	}

	if _, err := SetupLogger(&config.Config{LogLevel: "loud"}, applog.ComponentCLI); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
