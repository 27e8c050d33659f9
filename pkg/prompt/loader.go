package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/models"
)

// DefaultCacheTTL bounds how long a resolved template may be served
// without re-reading the ACTIVE pointer.
const DefaultCacheTTL = 5 * time.Minute

const activePointerName = "ACTIVE"

// Loader resolves the active template version for a (topic, role) pair.
type Loader struct {
	store ObjectStore
	cache *templateCache
}

// NewLoader creates a loader over the given store. A ttl <= 0 selects the
// default.
func NewLoader(store ObjectStore, ttl time.Duration) *Loader {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Loader{
		store: store,
		cache: newTemplateCache(ttl),
	}
}

// Get returns the active template text for a topic and role. An absent
// pointer or template object fails with TemplateNotFound.
func (l *Loader) Get(ctx context.Context, topicID string, role models.TemplateRole) (string, error) {
	cacheKey := topicID + "/" + string(role)
	if text, ok := l.cache.get(cacheKey); ok {
		return text, nil
	}

	pointerKey := fmt.Sprintf("%s/%s/%s", topicID, role, activePointerName)
	raw, err := l.store.GetObject(ctx, pointerKey)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return "", apperr.New(apperr.CodeTemplateNotFound,
				"no active template for topic %s role %s", topicID, role).WithName(string(role))
		}
		return "", fmt.Errorf("read template pointer %s: %w", pointerKey, err)
	}

	version := strings.TrimPrefix(strings.TrimSpace(string(raw)), "v")
	templateKey := fmt.Sprintf("%s/%s/v%s.tmpl", topicID, role, version)
	text, err := l.store.GetObject(ctx, templateKey)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return "", apperr.New(apperr.CodeTemplateNotFound,
				"template %s is missing (pointer names version %s)", templateKey, version).WithName(string(role))
		}
		return "", fmt.Errorf("read template %s: %w", templateKey, err)
	}

	l.cache.set(cacheKey, string(text))
	return string(text), nil
}

// templateCache is a TTL cache for resolved template text. Expired
// entries are cleaned up lazily on get().
type templateCache struct {
	mu      sync.RWMutex
	entries map[string]*templateEntry
	ttl     time.Duration
}

type templateEntry struct {
	text      string
	fetchedAt time.Time
}

func newTemplateCache(ttl time.Duration) *templateCache {
	return &templateCache{
		entries: make(map[string]*templateEntry),
		ttl:     ttl,
	}
}

func (c *templateCache) get(key string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return "", false
	}

	if time.Since(entry.fetchedAt) > c.ttl {
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && time.Since(current.fetchedAt) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return "", false
	}

	return entry.text, true
}

func (c *templateCache) set(key, text string) {
	c.mu.Lock()
	c.entries[key] = &templateEntry{text: text, fetchedAt: time.Now()}
	c.mu.Unlock()
}
