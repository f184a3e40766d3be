//go:build !linux

package storage

import "os"

// preallocate is a no-op on platforms without posix_fallocate support
// through golang.org/x/sys/unix; segment creation still succeeds, it
// simply forgoes the fragmentation-avoidance hint.
func preallocate(f *os.File, size int64) error {
	return nil
}

// adviseSequential is a no-op outside Linux for the same reason.
func adviseSequential(f *os.File) error {
	return nil
}
