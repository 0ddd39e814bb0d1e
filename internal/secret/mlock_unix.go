//go:build unix

package secret

import "golang.org/x/sys/unix"

// mlock pins b so it is not written to swap. Failure (for example
// RLIMIT_MEMLOCK) is tolerated by callers.
func mlock(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	return unix.Mlock(b)
}

func munlock(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	return unix.Munlock(b)
}
