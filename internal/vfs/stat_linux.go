//go:build linux

package vfs

import (
	"io/fs"
	"syscall"
	"time"
)

// creationTime extracts the closest thing to a birth time the platform
// offers. Linux stat carries no birth time, so inode change time stands in.
func creationTime(info fs.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return info.ModTime()
}
