//go:build !windows

package pwsfile

import (
	"fmt"
	"path/filepath"
	"syscall"
)

// CheckDiskSpace returns disk space information for the filesystem holding
// path, or its parent directory when path does not exist yet.
func CheckDiskSpace(path string) (*DiskSpaceInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		if err := syscall.Statfs(filepath.Dir(path), &stat); err != nil {
			return nil, fmt.Errorf("%w: %v", errDiskStatsUnavailable, err)
		}
	}

	bsize := uint64(stat.Bsize) //nolint:gosec // block size is never negative
	return newDiskSpaceInfo(stat.Blocks*bsize, stat.Bfree*bsize, stat.Bavail*bsize), nil
}
