//go:build !unix

package state

import "os"

// Non-unix builds only run one-shot commands in practice; locking is a no-op there.
func tryLockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
