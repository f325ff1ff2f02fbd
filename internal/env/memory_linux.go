//go:build linux

package env

import "golang.org/x/sys/unix"

func deviceMemory() float64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return roundMemory(uint64(info.Totalram) * uint64(info.Unit))
}
