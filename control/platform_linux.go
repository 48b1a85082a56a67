//go:build linux

// control/platform_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific debug probes.

package control

import "golang.org/x/sys/unix"

func registerPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.open_files_limit", func() any {
		var rl unix.Rlimit
		if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
			return err.Error()
		}
		return rl.Cur
	})
}
