// Package idgen provides ID generation implementations.
package idgen

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tinytb/web3.storage/ports"
)

// UUID generates UUIDs.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.New().String()
}

// Prefixed generates compact random IDs such as "cus_3f1c0e...".
type Prefixed struct {
	prefix string
}

// NewPrefixed creates a generator that prepends prefix to a dashless UUID.
func NewPrefixed(prefix string) Prefixed {
	return Prefixed{prefix: prefix}
}

// New generates a new prefixed ID.
func (p Prefixed) New() string {
	return p.prefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Sequential generates sequential IDs (for testing).
type Sequential struct {
	prefix  string
	counter uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	n := atomic.AddUint64(&s.counter, 1)
	return s.prefix + strconv.FormatUint(n, 10)
}

// Reset resets the counter (for testing).
func (s *Sequential) Reset() {
	atomic.StoreUint64(&s.counter, 0)
}

// Ensure interface compliance.
var (
	_ ports.IDGenerator = UUID{}
	_ ports.IDGenerator = Prefixed{}
	_ ports.IDGenerator = (*Sequential)(nil)
)
