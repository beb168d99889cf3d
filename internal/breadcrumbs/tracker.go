// Package breadcrumbs keeps a bounded, time-ordered buffer of contextual
// events that gets snapshotted onto every captured error.
package breadcrumbs

import (
	"sync"
	"time"

	"github.com/claimstack/errtrack/internal/models"
	"github.com/claimstack/errtrack/internal/sanitize"
)

// DefaultMax bounds the buffer when no explicit capacity is configured.
const DefaultMax = 100

// Tracker is a FIFO ring of recent breadcrumbs. Insertion beyond capacity
// evicts the oldest entry. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	crumbs    []models.Breadcrumb
	max       int
	sanitizer *sanitize.Sanitizer
	now       func() time.Time
}

// New creates a Tracker holding up to max entries. Data attached to
// breadcrumbs is run through the sanitizer before being stored.
func New(max int, sanitizer *sanitize.Sanitizer) *Tracker {
	if max <= 0 {
		max = DefaultMax
	}
	if sanitizer == nil {
		sanitizer = sanitize.New(nil)
	}
	return &Tracker{
		crumbs:    make([]models.Breadcrumb, 0, max),
		max:       max,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Add appends a breadcrumb, sanitizing data first and evicting the oldest
// entry when the buffer is at capacity.
func (t *Tracker) Add(category models.BreadcrumbCategory, message string, level models.BreadcrumbLevel, data map[string]any) {
	crumb := models.Breadcrumb{
		Timestamp: t.now().UTC(),
		Category:  category,
		Message:   message,
		Level:     level,
	}
	if len(data) > 0 {
		crumb.Data = t.sanitizer.Sanitize(data)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.crumbs) == t.max {
		copy(t.crumbs, t.crumbs[1:])
		t.crumbs = t.crumbs[:t.max-1]
	}
	t.crumbs = append(t.crumbs, crumb)
}

// Snapshot returns the current breadcrumbs oldest-first. The returned slice
// is a copy and safe to attach to an error record.
func (t *Tracker) Snapshot() []models.Breadcrumb {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.crumbs) == 0 {
		return nil
	}
	return append([]models.Breadcrumb(nil), t.crumbs...)
}

// Len reports how many breadcrumbs are buffered.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.crumbs)
}

// SetClock overrides the time source. Tests use it for deterministic ordering.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now != nil {
		t.now = now
	}
}
