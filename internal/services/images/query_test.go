package images

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildQueryNormalizes(t *testing.T) {
	query := BuildQuery("  India WINS  the Match! (Live)  ", "Sports")
	assert.Equal(t, "india wins the match live sports", query)
}

func TestBuildQueryWithoutCategory(t *testing.T) {
	assert.Equal(t, "markets rally", BuildQuery("Markets rally", ""))
}

func TestBuildQueryCapsLengthAtWordBoundary(t *testing.T) {
	long := strings.Repeat("headline ", 30)
	query := BuildQuery(long, "")
	assert.LessOrEqual(t, len(query), 120)
	assert.False(t, strings.HasSuffix(query, " "))
	for _, word := range strings.Fields(query) {
		assert.Equal(t, "headline", word, "cap must not cut mid-word")
	}
}
