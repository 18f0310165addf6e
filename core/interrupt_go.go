//go:build !tinygo

package core

// State mirrors interrupt.State for host builds.
type State uintptr

// disableInterrupts is a no-op on a host build, where there is no vector
// to race against.
func disableInterrupts() State {
	return 0
}

func restoreInterrupts(state State) {
}
