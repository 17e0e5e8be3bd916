//go:build basic || database

package integration

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	// sharedBackfillPath holds the path to a shared backfill binary built once for all tests.
	sharedBackfillPath string

	// buildOnce ensures we only build the binary once.
	buildOnce sync.Once

	// buildMutex protects the shared binary path.
	buildMutex sync.Mutex

	// tempDir holds the temp directory for cleanup.
	tempDir string
)

// TestMain handles setup and cleanup for all integration tests.
func TestMain(m *testing.M) {
	code := m.Run()

	if tempDir != "" {
		_ = os.RemoveAll(tempDir)
	}

	os.Exit(code)
}

// getBackfillBinary returns the path to the backfill binary, building it once if needed.
func getBackfillBinary() string {
	buildMutex.Lock()
	defer buildMutex.Unlock()

	buildOnce.Do(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "backfill-integration-*")
		if err != nil {
			panic(fmt.Sprintf("failed to create temp dir: %v", err))
		}

		backfillPath := filepath.Join(tempDir, "backfill")
		buildCmd := exec.Command("go", "build", "-o", backfillPath, ".")
		buildCmd.Dir = ".." // Build from project root
		if out, err := buildCmd.CombinedOutput(); err != nil {
			panic(fmt.Sprintf("failed to build backfill binary: %v\n%s", err, out))
		}

		sharedBackfillPath = backfillPath
	})

	return sharedBackfillPath
}

// exportFiles is one business day of POS exports: four files, twelve checks.
var exportFiles = map[string]string{
	"CheckDetails.csv":   "Check Id,Customer,Total\n1,Ann,$25.00\n2,Bob,$30.50\n3,Cy,$12.25\n",
	"OrderDetails.csv":   "Order Id,Duration (Opened to Paid),Total\n1,0:12:30,25.00\n2,0:20:00,30.50\n3,0:05:00,12.25\n",
	"PaymentDetails.csv": "Payment Id,Amount,Total\n1,25.00,25.00\n2,30.50,30.50\n3,12.25,12.25\n",
	"KitchenTimings.csv": "Ticket Id,Station,Fulfillment Time\n1,Grill,10 minutes\n2,Fry,4 minutes 30 seconds\n3,Grill,8 minutes\n",
}

// writeExports lays out one export directory per date under root.
func writeExports(t *testing.T, root string, dates ...string) {
	t.Helper()
	for _, d := range dates {
		dir := filepath.Join(root, d)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for name, body := range exportFiles {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
		}
	}
}

// runBackfill runs the binary with the given environment and returns its combined output.
func runBackfill(t *testing.T, env []string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(getBackfillBinary(), args...)
	cmd.Dir = t.TempDir()
	cmd.Env = append(os.Environ(), env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err != nil {
		t.Logf("Command failed: %s\nOutput: %s", cmd.String(), out.String())
	}
	return out.String(), err
}
