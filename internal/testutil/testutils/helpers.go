// Package helpers holds test fixtures shared across packages: filesystem
// assertions, git repositories, and in-memory stand-ins for the transport and
// activator.
package helpers

import (
	"os"
	"path/filepath"
)

func exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
