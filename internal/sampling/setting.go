package sampling

import (
	"sync"
	"time"

	"github.com/ghalamif/ProbeFlow/internal/ports"
)

// DefaultSettingRefresh bounds how stale a cached setting may be.
const DefaultSettingRefresh = 5 * time.Second

// CachedSetting reads a key from Settings at most once per refresh interval.
type CachedSetting struct {
	settings ports.Settings
	key      string
	def      string
	refresh  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	value   string
	checked time.Time
	loaded  bool
}

func NewCachedSetting(settings ports.Settings, key, def string, refresh time.Duration, now func() time.Time) *CachedSetting {
	if refresh <= 0 {
		refresh = DefaultSettingRefresh
	}
	if now == nil {
		now = time.Now
	}
	return &CachedSetting{
		settings: settings,
		key:      key,
		def:      def,
		refresh:  refresh,
		now:      now,
		value:    def,
	}
}

// Key is the settings key being cached.
func (c *CachedSetting) Key() string { return c.key }

// Get returns the cached value. refreshed is true when the store was read on
// this call, which is the caller's cue to re-parse the value.
func (c *CachedSetting) Get() (value string, refreshed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.loaded && now.Sub(c.checked) <= c.refresh {
		return c.value, false
	}
	if c.settings != nil {
		c.value = c.settings.GetString(c.key, c.def)
	}
	c.checked = now
	c.loaded = true
	return c.value, true
}

// Invalidate forces the next Get to read the store.
func (c *CachedSetting) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}
