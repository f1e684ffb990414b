//go:build blackbox

package blackbox

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

var riskgovBin string

func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "riskgov-blackbox-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmp)

	riskgovBin = filepath.Join(tmp, "riskgov")

	// Build the binary once for all tests.
	cmd := exec.Command("go", "build", "-o", riskgovBin, "../../cmd/riskgov")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

// run executes the binary with a scrubbed RISKGOV_* environment.
func run(t *testing.T, env []string, args ...string) string {
	t.Helper()

	cmd := exec.Command(riskgovBin, args...)
	cmd.Env = append([]string{"PATH=" + os.Getenv("PATH"), "HOME=" + t.TempDir()}, env...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("command failed: %v\nargs: %v\noutput:\n%s", err, args, string(out))
	}
	return string(out)
}
