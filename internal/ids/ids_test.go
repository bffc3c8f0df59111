package ids

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	a := New()
	b := New()

	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestNewReferenceFormat(t *testing.T) {
	at := time.Date(2026, time.October, 15, 9, 30, 0, 0, time.UTC)
	ref, err := NewReference("aret", at)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ref, "ARET-261015-"), ref)
	assert.Len(t, ref, len("ARET-261015-")+5)
	assert.True(t, ValidReference(ref), ref)
	for _, confusing := range "0O1IL" {
		assert.NotContains(t, ref[len("ARET-261015-"):], string(confusing))
	}
}

func TestNewReferenceDefaultsPrefix(t *testing.T) {
	ref, err := NewReference("  ", time.Now())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, DefaultReferencePrefix+"-"), ref)
}

func TestNewReferenceUsesLocationDate(t *testing.T) {
	lagos := time.FixedZone("WAT", 60*60)
	at := time.Date(2026, time.October, 15, 23, 30, 0, 0, time.UTC)
	ref, err := NewReference("ARET", at.In(lagos))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "ARET-261016-"), ref)
}

func TestNewReferenceVaries(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		ref, err := NewReference("ARET", time.Now())
		require.NoError(t, err)
		seen[ref] = struct{}{}
	}
	assert.Greater(t, len(seen), 45)
}

func TestValidReference(t *testing.T) {
	assert.True(t, ValidReference("ARET-261015-7KQ4M"))
	assert.False(t, ValidReference("ARET-261015-7KQ4"))
	assert.False(t, ValidReference("ARET-261015-7KQ0M"))
	assert.False(t, ValidReference("ARET-2610XX-7KQ4M"))
	assert.False(t, ValidReference("-261015-7KQ4M"))
	assert.False(t, ValidReference("nonsense"))
}
