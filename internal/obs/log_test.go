package obs

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLoggerSwapsAndRestores(t *testing.T) {
	quiet := zap.NewNop()
	restoreQuiet := SetLogger(quiet)
	defer restoreQuiet()
	if Logger() != quiet {
		t.Fatal("expected the installed logger")
	}

	core, logs := observer.New(zapcore.InfoLevel)
	restore := SetLogger(zap.New(core))
	Logger().Info("captured")
	restore()
	Logger().Info("dropped")

	if Logger() != quiet {
		t.Fatal("restore did not bring back the previous logger")
	}
	if logs.Len() != 1 || logs.All()[0].Message != "captured" {
		t.Fatalf("unexpected entries: %v", logs.All())
	}
}

func TestSetLevelRejectsUnknownNames(t *testing.T) {
	if err := SetLevel("loud"); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
	if err := SetLevel("warn"); err != nil {
		t.Fatalf("warn: %v", err)
	}
	t.Cleanup(func() { _ = SetLevel("info") })
}
