package testutil

import (
	"os"
	"path/filepath"
)

// BinaryName is the name of the built CLI.
const BinaryName = "dataflow"

// GetBinaryPath returns the path to the dataflow binary for integration tests.
// It checks, in order:
// 1. DATAFLOW_BINARY, when set
// 2. Current directory (./dataflow)
// 3. Parent directory (../dataflow), where `go build -o dataflow .` leaves it
// 4. bin directory (../bin/dataflow)
func GetBinaryPath() string {
	if p := os.Getenv("DATAFLOW_BINARY"); p != "" {
		return p
	}

	candidates := []string{
		BinaryName,
		filepath.Join("..", BinaryName),
		filepath.Join("..", "bin", BinaryName),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			abs, err := filepath.Abs(c)
			if err != nil {
				return c
			}
			return abs
		}
	}

	return filepath.Join("..", BinaryName)
}
