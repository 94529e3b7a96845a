package pipeline

import (
	"sync"

	"github.com/banshee-data/tactical/internal/tactical/zones"
)

// alertRing keeps the most recent alerts in arrival order.
type alertRing struct {
	mu   sync.Mutex
	buf  []zones.Alert
	next int
	full bool
}

func newAlertRing(size int) *alertRing {
	if size < 1 {
		size = 1
	}
	return &alertRing{buf: make([]zones.Alert, size)}
}

func (r *alertRing) add(a zones.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = a
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// recent returns up to limit alerts, oldest first. A limit of 0 or less
// returns everything held.
func (r *alertRing) recent(limit int) []zones.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []zones.Alert
	if r.full {
		all = append(all, r.buf[r.next:]...)
	}
	all = append(all, r.buf[:r.next]...)
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}
