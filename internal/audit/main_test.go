package audit

import (
	"os"
	"testing"

	"go.uber.org/zap"

	"extensao.org/internal/obs"
)

func TestMain(m *testing.M) {
	obs.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}
