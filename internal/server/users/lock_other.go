//go:build !unix

package users

import "os"

// Without flock only the in-process mutex guards the store.
func lockFile(*os.File, bool) error { return nil }

func unlockFile(*os.File) error { return nil }
