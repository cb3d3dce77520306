//go:build integration

package integration

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// engineHostPath is the engine host binary built by TestMain.
var engineHostPath string

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	dir, err := os.MkdirTemp("", "enginebridge-integration")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create temp dir: %v\n", err)

		return 1
	}
	defer os.RemoveAll(dir)

	engineHostPath = filepath.Join(dir, "engine_host")

	build := exec.Command("go", "build", "-o", engineHostPath, "../examples/engine_host")
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr

	if err := build.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "build engine host: %v\n", err)

		return 1
	}

	return m.Run()
}

// skipIfNoEngineHost skips the test if the engine host was not built.
func skipIfNoEngineHost(t *testing.T) {
	t.Helper()

	if _, err := os.Stat(engineHostPath); err != nil {
		t.Skipf("engine host not available: %v", err)
	}
}
