//go:build !windows

package backup

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// minFreeBytes refuses to start an archive when the destination volume
// is nearly full; a failed rename after a long compression run is worse
// than failing fast.
const minFreeBytes = 64 << 20

func preflightDest(dir string) error {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		// Preflight is best-effort; an exotic filesystem should not
		// block backups.
		return nil
	}
	free := uint64(st.Bavail) * uint64(st.Bsize)
	if free < minFreeBytes {
		return fmt.Errorf("destination %s has only %d bytes free", dir, free)
	}
	return nil
}
