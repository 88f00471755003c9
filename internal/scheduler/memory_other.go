//go:build !linux

package scheduler

// availableMemory is unknown on this platform. 16 GiB keeps the CPU
// based worker count.
func availableMemory() uint64 {
	return 16 << 30
}
