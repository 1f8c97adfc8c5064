package daemon

import (
	"path/filepath"
	"testing"

	"github.com/twistedxcom/statusdeck/internal/config"
)

// testConfig builds a config with an ephemeral query port and the given
// ingest socket path.
func testConfig(t *testing.T, sock string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(filepath.Dir(sock))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	cfg.SocketPath = sock
	cfg.QueryAddr = "127.0.0.1:0"
	return cfg
}
