package monitoring

import (
	"golang.org/x/sys/unix"
)

// DiskUsagePercent reports how full the filesystem holding path is, 0-100.
func DiskUsagePercent(path string) (int, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	if st.Blocks == 0 {
		return 0, nil
	}

	used := st.Blocks - st.Bavail
	return int(used * 100 / st.Blocks), nil
}
