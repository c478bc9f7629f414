package allocator

// CorruptionPolicy selects what Free does when it finds a slot's guards
// already violated (double-free, buffer overflow/underflow).
type CorruptionPolicy int

const (
	// PolicyBestEffortDrop logs the detected corruption and drops the
	// free: the slot is neither reinserted into a bin nor released,
	// since either action risks propagating a corrupted slot into a
	// live free list. This is the default.
	PolicyBestEffortDrop CorruptionPolicy = iota

	// PolicyRaiseSignal raises SIGSEGV against the current process,
	// synchronously, the moment corruption is detected.
	PolicyRaiseSignal
)

// poolConfig holds construction-time settings assembled from PoolOption
// values, following the functional-options idiom used throughout this
// codebase's allocator configuration.
type poolConfig struct {
	threadSafe bool
	corruption CorruptionPolicy
}

func defaultPoolConfig() *poolConfig {
	return &poolConfig{
		threadSafe: false,
		corruption: PolicyBestEffortDrop,
	}
}

// PoolOption configures a Pool at construction time.
type PoolOption func(*poolConfig)

// WithThreadSafe enables the pool-embedded mutex: every public entry
// point (Alloc, Calloc, Free, Reset, Destroy) locks on entry and unlocks
// on every exit path, including allocation failure. Without this option
// a Pool is single-owner and the caller must serialize access itself.
func WithThreadSafe() PoolOption {
	return func(c *poolConfig) { c.threadSafe = true }
}

// WithCorruptionPolicy selects the behavior of Free when guard validation
// fails. See CorruptionPolicy.
func WithCorruptionPolicy(policy CorruptionPolicy) PoolOption {
	return func(c *poolConfig) { c.corruption = policy }
}
