//go:build linux

package sampler

import (
	"time"

	"golang.org/x/sys/unix"
)

func statDisk(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, err
	}
	return statfsUsage(&st), nil
}

// statfsUsage mirrors df: block counts are in fragment units, used
// excludes free blocks and total counts what unprivileged users can reach.
func statfsUsage(st *unix.Statfs_t) Usage {
	frsize := uint64(st.Frsize)
	if frsize == 0 {
		frsize = uint64(st.Bsize)
	}
	used := (st.Blocks - st.Bfree) * frsize
	return Usage{
		Used:  used,
		Total: used + st.Bavail*frsize,
	}
}

func readUptime() (time.Duration, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	return time.Duration(info.Uptime) * time.Second, nil
}
