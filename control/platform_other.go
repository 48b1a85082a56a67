//go:build !linux

// control/platform_other.go
// Author: momentics <momentics@gmail.com>

package control

func registerPlatformProbes(*DebugProbes) {}
