package aio

import "sync"

// Process-wide networking startup is guarded by a reference-counted
// initializer: the first IOContext runs the startup hooks, the last one
// out runs the cleanup hooks. On the Unix targets this module supports
// there is no mandatory subsystem startup, so the hook lists start empty;
// embedders with process-wide needs can register their own.
var netState struct {
	mu      sync.Mutex
	refs    int
	startup []func() error
	cleanup []func()
}

// RegisterNetStartup adds a hook run when the reference count goes from
// zero to one. Must be called before the first IOContext is created.
func RegisterNetStartup(fn func() error) {
	netState.mu.Lock()
	netState.startup = append(netState.startup, fn)
	netState.mu.Unlock()
}

// RegisterNetCleanup adds a hook run when the reference count returns to
// zero.
func RegisterNetCleanup(fn func()) {
	netState.mu.Lock()
	netState.cleanup = append(netState.cleanup, fn)
	netState.mu.Unlock()
}

func acquireNet() error {
	netState.mu.Lock()
	defer netState.mu.Unlock()
	if netState.refs == 0 {
		for _, fn := range netState.startup {
			if err := fn(); err != nil {
				return err
			}
		}
	}
	netState.refs++
	return nil
}

func releaseNet() {
	netState.mu.Lock()
	defer netState.mu.Unlock()
	if netState.refs == 0 {
		return
	}
	netState.refs--
	if netState.refs == 0 {
		for _, fn := range netState.cleanup {
			fn()
		}
	}
}
