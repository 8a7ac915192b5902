// Package affinity pins the calling OS thread to a specific logical CPU so
// the loop goroutine can be kept off the Go scheduler's migration path.
// Platform-specific implementations live in separate files guarded by
// build tags.
package affinity

// SetAffinity pins the current OS thread to cpuID on supported platforms.
// It returns an error on platforms with no implementation.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}
