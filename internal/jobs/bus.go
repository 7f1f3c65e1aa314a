package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/reelcraft/reelcraft/internal/models"
)

// Event types delivered to subscribers.
const (
	EventProgress = "job_progress"
	EventStatus   = "job_status"
)

// Event is one progress or status update for a job.
type Event struct {
	Type     string           `json:"type"`
	JobID    string           `json:"job_id"`
	Status   models.JobStatus `json:"status,omitempty"`
	Progress int              `json:"progress"`
	Message  string           `json:"message,omitempty"`
}

// Bus fans job events out to per-job subscribers. Delivery is best
// effort: a subscriber that cannot keep up misses intermediate events
// and resynchronizes from the snapshot. When a Redis client is
// provided, the last event per job is also kept there so subscribers
// on other processes can resync with one read.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
	last map[string]Event

	rdb *redis.Client
	ttl time.Duration
}

// NewBus creates a bus. rdb may be nil; the snapshot is then held in
// memory only.
func NewBus(rdb *redis.Client, snapshotTTL time.Duration) *Bus {
	return &Bus{
		subs: make(map[string]map[chan Event]struct{}),
		last: make(map[string]Event),
		rdb:  rdb,
		ttl:  snapshotTTL,
	}
}

// Subscribe registers for a job's events. The returned cancel func
// must be called to release the subscription.
func (b *Bus) Subscribe(jobID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan Event]struct{})
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[jobID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, jobID)
			}
		}
		b.mu.Unlock()
	}

	return ch, cancel
}

// PublishProgress broadcasts a progress checkpoint.
func (b *Bus) PublishProgress(jobID string, progress int, message string) {
	b.publish(Event{
		Type:     EventProgress,
		JobID:    jobID,
		Progress: progress,
		Message:  message,
	})
}

// PublishStatus broadcasts a status transition.
func (b *Bus) PublishStatus(jobID string, status models.JobStatus, progress int, message string) {
	b.publish(Event{
		Type:     EventStatus,
		JobID:    jobID,
		Status:   status,
		Progress: progress,
		Message:  message,
	})
}

// Snapshot returns the most recent event for a job, or false when none
// is known. Redis is consulted first so snapshots survive restarts.
func (b *Bus) Snapshot(ctx context.Context, jobID string) (Event, bool) {
	if b.rdb != nil {
		data, err := b.rdb.Get(ctx, snapshotKey(jobID)).Bytes()
		if err == nil {
			var ev Event
			if err := json.Unmarshal(data, &ev); err == nil {
				return ev, true
			}
		} else if err != redis.Nil {
			log.Printf("[Bus] Snapshot read failed for %s: %v", jobID, err)
		}
	}

	b.mu.RLock()
	ev, ok := b.last[jobID]
	b.mu.RUnlock()
	return ev, ok
}

func (b *Bus) publish(ev Event) {
	b.mu.Lock()
	b.last[ev.JobID] = ev
	targets := make([]chan Event, 0, len(b.subs[ev.JobID]))
	for ch := range b.subs[ev.JobID] {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	for _, ch := range targets {
		// Never block a pipeline goroutine on a slow subscriber.
		select {
		case ch <- ev:
		default:
		}
	}

	if b.rdb != nil {
		data, err := json.Marshal(ev)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := b.rdb.Set(ctx, snapshotKey(ev.JobID), data, b.ttl).Err(); err != nil {
				log.Printf("[Bus] Snapshot write failed for %s: %v", ev.JobID, err)
			}
			cancel()
		}
	}
}

func snapshotKey(jobID string) string {
	return fmt.Sprintf("reelcraft:job:%s:last_event", jobID)
}
