package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roomledger/backend/internal/models"
)

func TestBuildAdminQuery(t *testing.T) {
	t.Parallel()

	t.Run("no filters", func(t *testing.T) {
		q, args := buildAdminQuery(models.RecordFilter{})
		assert.NotContains(t, q, "WHERE")
		assert.Empty(t, args)
		assert.True(t, strings.HasSuffix(q, "ORDER BY sr.created_at DESC, sr.id DESC"))
	})

	t.Run("all filters are ANDed", func(t *testing.T) {
		day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
		q, args := buildAdminQuery(models.RecordFilter{Search: "50%_off", ServiceName: "Rent", Date: &day})
		assert.Contains(t, q, "s.service_name ILIKE $1")
		assert.Contains(t, q, "u.username ILIKE $1")
		assert.Contains(t, q, "sr.description ILIKE $1")
		assert.Contains(t, q, "s.service_name = $2")
		assert.Contains(t, q, "sr.created_at >= $3 AND sr.created_at < $4")
		assert.Equal(t, 3, strings.Count(q, " AND "))
		assert.Equal(t, []any{`%50\%\_off%`, "Rent", day, day.AddDate(0, 0, 1)}, args)
	})
}

func TestEscapeLike(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `a\\b\%c\_d`, escapeLike(`a\b%c_d`))
	assert.Equal(t, "plain", escapeLike("plain"))
}
