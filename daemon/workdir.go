// Copyright 2017, Kerby Shedden and the Muscato contributors.

package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// NewWorkDir creates and returns a fresh uniquely-named subdirectory
// of base, for ad hoc BIGSI storage or log directories when none was
// configured explicitly. Grounded on cmd/muscato/muscato.go:makeTemp's
// use of a uuid-suffixed directory for the same purpose.
func NewWorkDir(base string) (string, error) {
	dir := filepath.Join(base, uuid.NewString())
	if err := os.MkdirAll(dir, 0770); err != nil {
		return "", fmt.Errorf("daemon: create work directory %s: %w", dir, err)
	}
	return dir, nil
}
