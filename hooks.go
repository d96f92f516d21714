package hashcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The engines call them on hot paths.
type Hooks interface {
	// A typed Get on Redis found a record that did not decode into the
	// requested type; the caller was told "not found".
	ForgivingRead(storageKey string, err error)

	// An expired in-process entry was purged by a Get.
	LazyExpired(storageKey string)

	// The record was written but its EXPIRE failed; it persists without TTL.
	ExpireFailed(storageKey string, err error)

	// A Redis call failed for pool, network or client reasons
	// (not a server reply).
	ConnectionError(op string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ForgivingRead(string, error)   {}
func (NopHooks) LazyExpired(string)            {}
func (NopHooks) ExpireFailed(string, error)    {}
func (NopHooks) ConnectionError(string, error) {}
