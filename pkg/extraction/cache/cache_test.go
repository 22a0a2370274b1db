package cache

import (
	"context"
	"errors"
	"strings"
	"testing"

	"agro-intake-be/internal/pkg/logger"
	"agro-intake-be/pkg/questionnaire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quotaStore struct {
	*MemoryStore
	writes int
}

func (s *quotaStore) Set(context.Context, string, []byte) error {
	s.writes++
	return errors.New("quota exceeded")
}

func newTestCache() (*Cache, *MemoryStore) {
	store := NewMemoryStore(0)
	return New(store, logger.NewNopLogger()), store
}

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"punctuation replaced", "We grow tomatoes, 2 ha!", "extraction_cache_We_grow_tomatoes__2_ha_"},
		{"accents kept", "Invernadero multitúnel", "extraction_cache_Invernadero_multitúnel"},
		{"empty", "", "extraction_cache_"},
		{
			"truncated to fifty characters",
			strings.Repeat("a", 49) + "bcdef",
			"extraction_cache_" + strings.Repeat("a", 49) + "b",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.text))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()
	entry := Entry{
		Data: map[string]questionnaire.Value{
			"sistema-riego":       questionnaire.StringValue("1"),
			"galvanizado-pilares": questionnaire.BoolValue(true),
		},
		AutoCompletedFields: []string{"sistema-riego", "galvanizado-pilares"},
	}

	c.Put(ctx, "drip irrigation and galvanised posts", entry)
	got := c.Get(ctx, "drip irrigation and galvanised posts")

	require.NotNil(t, got)
	assert.Equal(t, entry, *got)
}

func TestGetUnsetKey(t *testing.T) {
	c, _ := newTestCache()
	assert.Nil(t, c.Get(context.Background(), "never stored"))
}

func TestEmptyDataRoundTrips(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()
	c.Put(ctx, "nothing useful", Entry{Data: map[string]questionnaire.Value{}})

	got := c.Get(ctx, "nothing useful")
	require.NotNil(t, got)
	assert.Empty(t, got.Data)
	assert.Empty(t, got.AutoCompletedFields)
}

func TestCorruptedEntriesAreEvicted(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{{"},
		{"missing data", `{"autoCompletedFields":["a"]}`},
		{"null data", `{"data":null}`},
		{"wrong shape", `[1,2,3]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store := newTestCache()
			ctx := context.Background()
			key := Key("corrupted narration")
			require.NoError(t, store.Set(ctx, key, []byte(tt.raw)))

			assert.Nil(t, c.Get(ctx, "corrupted narration"))

			_, err := store.Get(ctx, key)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPutSwallowsWriteFailures(t *testing.T) {
	store := &quotaStore{MemoryStore: NewMemoryStore(0)}
	c := New(store, logger.NewNopLogger())

	assert.NotPanics(t, func() {
		c.Put(context.Background(), "text", Entry{Data: map[string]questionnaire.Value{"a": questionnaire.StringValue("b")}})
	})
	assert.Equal(t, 1, store.writes)
	assert.Nil(t, c.Get(context.Background(), "text"))
}
