package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wearesierraleone/frontend/internal/models"
)

func TestPosts(t *testing.T) {
	list := Posts()
	assert.Len(t, list, 3)
	for i, p := range list {
		assert.Equal(t, models.PostApproved, p.Status)
		assert.NoError(t, models.Validate(p))
		if i > 0 {
			assert.True(t, list[i-1].Timestamp.After(p.Timestamp), "newest first")
		}
	}

	list[0].Title = "changed"
	assert.NotEqual(t, "changed", Posts()[0].Title, "callers get a copy")
}

func TestPost(t *testing.T) {
	p, ok := Post("fallback2")
	assert.True(t, ok)
	assert.Equal(t, "health", p.Category)

	_, ok = Post("nope")
	assert.False(t, ok)
}
