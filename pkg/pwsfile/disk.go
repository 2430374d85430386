package pwsfile

import (
	"errors"
	"fmt"
	"os"
	"runtime"
)

// Disk capacity thresholds
const (
	MinDiskSpaceBytes  = 10 * 1024 * 1024 // 10 MB minimum free space
	DiskWarningPercent = 90               // warn when the disk is 90% full
)

// Filesystem errors
var (
	ErrInsufficientDisk     = errors.New("pwsfile: insufficient disk space")
	ErrInsecurePermissions  = errors.New("pwsfile: insecure file permissions")
	errDiskStatsUnavailable = errors.New("pwsfile: disk stats unavailable")
)

// DiskSpaceInfo contains disk usage information
type DiskSpaceInfo struct {
	Total     uint64 `json:"total"`     // Total disk space in bytes
	Free      uint64 `json:"free"`      // Free disk space in bytes
	Available uint64 `json:"available"` // Available to non-root users
	UsedPct   int    `json:"used_pct"`  // Percentage of disk used
}

// Low reports whether disk usage is above the warning threshold.
func (d *DiskSpaceInfo) Low() bool {
	return d.UsedPct >= DiskWarningPercent
}

func newDiskSpaceInfo(total, free, available uint64) *DiskSpaceInfo {
	usedPct := 0
	if total > 0 {
		usedPct = int(100 * (total - free) / total)
	}
	return &DiskSpaceInfo{
		Total:     total,
		Free:      free,
		Available: available,
		UsedPct:   usedPct,
	}
}

// checkDiskSpaceForWrite fails when the directory holding path has less
// room than MinDiskSpaceBytes or twice size. Missing stats do not block
// the write.
func checkDiskSpaceForWrite(path string, size int) error {
	info, err := CheckDiskSpace(path)
	if err != nil {
		return nil
	}

	required := uint64(MinDiskSpaceBytes)
	if uint64(size*2) > required {
		required = uint64(size * 2)
	}
	if info.Available < required {
		return fmt.Errorf("%w: only %d MB available, need at least %d MB",
			ErrInsufficientDisk,
			info.Available/(1024*1024),
			required/(1024*1024))
	}
	return nil
}

// CheckPermissions returns ErrInsecurePermissions when the file at path is
// readable or writable by group or others. It is advisory and always
// succeeds on Windows.
func CheckPermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("%w: %s has mode %04o (expected %04o)", ErrInsecurePermissions, path, perm, FileMode)
	}
	return nil
}
