// Package idx generates the ULID identifiers used as primary keys.
// ULIDs sort lexicographically by creation time, so ORDER BY id is creation order.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a 26-character Crockford base32 ULID.
type ID string

// Zero is the empty ID.
const Zero ID = ""

// ErrInvalid reports a malformed ULID string.
var ErrInvalid = errors.New("idx: invalid ulid")

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a new ID for the current time.
func New() ID {
	return NewAt(time.Now().UTC())
}

// NewAt returns a new ID whose timestamp component is t.
func NewAt(t time.Time) ID {
	mu.Lock()
	defer mu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

// Parse validates s and returns it in canonical (upper case) form.
func Parse(s string) (ID, error) {
	u, err := ulid.ParseStrict(strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return Zero, ErrInvalid
	}
	return ID(u.String()), nil
}

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// IsZero reports whether id is unset.
func (id ID) IsZero() bool { return id == Zero }

// Time returns the timestamp encoded in id.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}
