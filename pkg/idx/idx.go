// Package idx generates the sortable identifiers used for persisted rows and
// request correlation.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID in its canonical 26 character form.
type ID string

const Zero ID = ""

var ErrInvalid = errors.New("idx: invalid ulid")

// Source hands out monotonic ULIDs. It is safe for concurrent use.
type Source struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSource returns a Source backed by crypto/rand.
func NewSource() *Source {
	return &Source{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// At returns an ID stamped with t.
func (s *Source) At(t time.Time) ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ID(ulid.MustNew(ulid.Timestamp(t.UTC()), s.entropy).String())
}

var (
	defaultOnce sync.Once
	defaultSrc  *Source
)

func source() *Source {
	defaultOnce.Do(func() { defaultSrc = NewSource() })
	return defaultSrc
}

// New returns an ID for the current time.
func New() ID { return source().At(time.Now()) }

// NewAt returns an ID for t. Rows created with an injected clock use this so
// ids sort the same way as their timestamps.
func NewAt(t time.Time) ID { return source().At(t) }

// Parse validates s as a strict ULID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}
	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

func (id ID) IsZero() bool   { return id == Zero }
func (id ID) String() string { return string(id) }

// Time extracts the millisecond timestamp embedded in the id. Invalid ids
// yield the zero time.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time()).UTC()
}

// Compare orders ids lexically, which for ULIDs is creation order.
func Compare(a, b ID) int {
	return strings.Compare(string(a), string(b))
}
