package reconcile

import (
	"strings"
	"testing"

	"github.com/communekit/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateContent(t *testing.T) {
	cases := []struct {
		name    string
		content string
		ok      bool
	}{
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"single char", "a", true},
		{"max length", strings.Repeat("a", 2000), true},
		{"over max", strings.Repeat("a", 2001), false},
		{"max after trim", "  " + strings.Repeat("a", 2000) + "  ", true},
		{"multibyte counts runes", strings.Repeat("你", 2000), true},
		{"multibyte over max", strings.Repeat("你", 2001), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateContent(tc.content)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
			}
		})
	}
}

func TestActorCapabilities(t *testing.T) {
	anon := Actor{}
	member := Actor{ID: "u1", Role: models.RoleMember}
	mod := Actor{ID: "u2", Role: models.RoleModerator}

	assert.False(t, anon.CanCreate())
	assert.True(t, member.CanCreate())
	assert.True(t, mod.CanCreate())

	assert.False(t, member.CanModerate())
	assert.True(t, mod.CanModerate())

	assert.True(t, member.CanActOn("u1"))
	assert.False(t, member.CanActOn("u2"))
	assert.False(t, anon.CanActOn(""))
}

func TestPendingSet(t *testing.T) {
	p := make(PendingSet)
	require.True(t, p.TryAcquire("a"))
	assert.False(t, p.TryAcquire("a"))
	assert.True(t, p.Has("a"))

	p.Release("a")
	assert.False(t, p.Has("a"))
	assert.True(t, p.TryAcquire("a"))
}

type item struct{ ID string }

func itemID(i item) string { return i.ID }

func TestMergeAppendIsIdempotent(t *testing.T) {
	dst := []item{{"a"}, {"b"}}
	incoming := []item{{"b"}, {"c"}}

	merged := MergeAppend(dst, incoming, itemID)
	require.Len(t, merged, 3)
	assert.Equal(t, []item{{"a"}, {"b"}, {"c"}}, merged)

	again := MergeAppend(merged, incoming, itemID)
	assert.Equal(t, merged, again)
}

func TestRemoveID(t *testing.T) {
	items := []item{{"a"}, {"b"}, {"c"}}

	next, ok := RemoveID(items, "b", itemID)
	require.True(t, ok)
	assert.Equal(t, []item{{"a"}, {"c"}}, next)

	next, ok = RemoveID(next, "missing", itemID)
	assert.False(t, ok)
	assert.Len(t, next, 2)
}
