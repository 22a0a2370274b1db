package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode"

	"agro-intake-be/internal/pkg/logger"
	"agro-intake-be/pkg/questionnaire"
)

const (
	logModule = "ExtractionCache"

	keyPrefix    = "extraction_cache_"
	keyTextLimit = 50
	placeholder  = '_'
)

// Entry is a cached extraction result for one narration.
type Entry struct {
	Data                map[string]questionnaire.Value `json:"data"`
	AutoCompletedFields []string                       `json:"autoCompletedFields"`
}

// storedEntry distinguishes a missing "data" field from an empty one on read.
type storedEntry struct {
	Data                *map[string]questionnaire.Value `json:"data"`
	AutoCompletedFields []string                        `json:"autoCompletedFields"`
}

// Cache stores extraction results keyed by a normalised prefix of the narration.
type Cache struct {
	store  KeyValueStore
	logger logger.ILogger
}

func New(store KeyValueStore, log logger.ILogger) *Cache {
	return &Cache{store: store, logger: log}
}

// Key derives the store key: the first 50 characters of text with every
// non-alphanumeric character replaced by '_'.
func Key(text string) string {
	var sb strings.Builder
	sb.WriteString(keyPrefix)
	n := 0
	for _, r := range text {
		if n == keyTextLimit {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(placeholder)
		}
		n++
	}
	return sb.String()
}

// Get returns the cached entry for text, or nil when absent or unusable.
// Corrupted entries are evicted.
func (c *Cache) Get(ctx context.Context, text string) *Entry {
	key := Key(text)
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn(logModule, "Cache read failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return nil
	}

	var stored storedEntry
	if err := json.Unmarshal(raw, &stored); err != nil || stored.Data == nil {
		reason := "missing data field"
		if err != nil {
			reason = err.Error()
		}
		c.logger.Warn(logModule, "Evicting corrupted cache entry", map[string]interface{}{
			"key":    key,
			"reason": reason,
		})
		if derr := c.store.Delete(ctx, key); derr != nil {
			c.logger.Warn(logModule, "Cache eviction failed", map[string]interface{}{
				"key":   key,
				"error": derr.Error(),
			})
		}
		return nil
	}

	return &Entry{
		Data:                *stored.Data,
		AutoCompletedFields: stored.AutoCompletedFields,
	}
}

// Put stores entry under text. Failures (quota, network) are logged and swallowed.
func (c *Cache) Put(ctx context.Context, text string, entry Entry) {
	key := Key(text)
	if entry.Data == nil {
		entry.Data = map[string]questionnaire.Value{}
	}
	if entry.AutoCompletedFields == nil {
		entry.AutoCompletedFields = []string{}
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn(logModule, "Cache entry encode failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}

	if err := c.store.Set(ctx, key, raw); err != nil {
		c.logger.Warn(logModule, "Cache write failed, continuing without cache", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
