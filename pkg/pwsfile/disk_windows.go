//go:build windows

package pwsfile

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// CheckDiskSpace returns disk space information for the volume holding
// path, or its parent directory when path does not exist yet.
func CheckDiskSpace(path string) (*DiskSpaceInfo, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = filepath.Dir(path)
	}

	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errDiskStatsUnavailable, err)
	}
	var freeBytesAvailable, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeBytesAvailable, &totalBytes, &totalFreeBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", errDiskStatsUnavailable, err)
	}
	return newDiskSpaceInfo(totalBytes, totalFreeBytes, freeBytesAvailable), nil
}
