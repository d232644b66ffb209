package idx

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewIsSortable(t *testing.T) {
	t.Parallel()

	a := NewAt(time.Unix(1000, 0))
	b := NewAt(time.Unix(2000, 0))
	require.Less(t, a.String(), b.String())

	c := New()
	d := New()
	require.Less(t, c.String(), d.String(), "monotonic within the same millisecond")
}

func TestParse(t *testing.T) {
	t.Parallel()

	id := New()
	parsed, err := Parse(string(id))
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	lower, err := Parse(" " + strings.ToLower(string(id)) + " ")
	require.NoError(t, err)
	require.Equal(t, id, lower)

	_, err = Parse("42")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, NewAt(at).Time().Equal(at))
	require.True(t, ID("garbage").Time().IsZero())
}
