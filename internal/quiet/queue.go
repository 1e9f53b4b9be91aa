package quiet

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/clock"
	"github.com/lazypower/resonance/internal/presence"
)

// Queue holds pending and delivered messages. A message is in exactly one of
// the two lists; every move happens under the queue lock.
type Queue struct {
	mu        sync.Mutex
	clock     clock.Clock
	log       *zap.Logger
	pending   []QuietMessage
	delivered []QuietMessage
}

// NewQueue returns an empty queue. A nil clock means the system clock.
func NewQueue(c clock.Clock, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{clock: clock.OrReal(c), log: log}
}

// Send enqueues msg as pending. It fills in the ID and SentAt when empty.
func (q *Queue) Send(msg Message, tone Tone, suppress bool, cond Condition) (QuietMessage, error) {
	if int(tone) >= len(toneNames) {
		return QuietMessage{}, fmt.Errorf("send: invalid tone %d", tone)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = q.clock.Now()
	}
	qm := QuietMessage{
		Message:              msg,
		Tone:                 tone,
		SuppressNotification: suppress,
		Condition:            cond,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexLocked(q.pending, msg.ID) >= 0 || q.indexLocked(q.delivered, msg.ID) >= 0 {
		return QuietMessage{}, fmt.Errorf("send: message %s already queued", msg.ID)
	}
	q.pending = append(q.pending, qm)

	q.log.Debug("quiet message queued",
		zap.String("id", msg.ID),
		zap.String("recipient", msg.RecipientID),
		zap.String("condition", ConditionKind(cond)))
	return qm, nil
}

// CanReveal reports whether msg's reveal condition holds now for the given
// recipient presence. A nil presence never satisfies a presence match.
func (q *Queue) CanReveal(msg QuietMessage, current *presence.State) bool {
	return canReveal(msg, current, q.clock.Now())
}

func canReveal(msg QuietMessage, current *presence.State, now time.Time) bool {
	switch c := msg.Condition.(type) {
	case nil, OnOpen:
		return true
	case TimedDelay:
		return !now.Before(msg.SentAt.Add(c.Delay))
	case PresenceMatch:
		return current != nil && current.Matches(c.Required)
	}
	return false
}

// Lookup resolves a recipient's current presence, or nil when unknown.
type Lookup func(recipientID string) *presence.State

// DeliverReady moves every pending message whose condition holds against
// current to the delivered list and returns them.
func (q *Queue) DeliverReady(current *presence.State) []QuietMessage {
	return q.DeliverEach(func(string) *presence.State { return current })
}

// DeliverEach moves every pending message whose condition holds against its
// recipient's presence to the delivered list and returns them. A message is
// returned by at most one call. lookup runs under the queue lock.
func (q *Queue) DeliverEach(lookup Lookup) []QuietMessage {
	now := q.clock.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []QuietMessage
	q.pending = slices.DeleteFunc(q.pending, func(m QuietMessage) bool {
		if !canReveal(m, lookup(m.RecipientID), now) {
			return false
		}
		at := now
		m.DeliveredAt = &at
		ready = append(ready, m)
		return true
	})
	q.delivered = append(q.delivered, ready...)

	if len(ready) > 0 {
		q.log.Debug("quiet messages delivered", zap.Int("count", len(ready)))
	}
	return ready
}

// Open delivers a single pending message because its recipient opened it.
// Conditions other than OnOpen must still hold.
func (q *Queue) Open(id string, current *presence.State) (QuietMessage, bool) {
	now := q.clock.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(q.pending, id)
	if i < 0 || !canReveal(q.pending[i], current, now) {
		return QuietMessage{}, false
	}
	m := q.pending[i]
	m.DeliveredAt = &now
	q.pending = slices.Delete(q.pending, i, i+1)
	q.delivered = append(q.delivered, m)
	return m, true
}

// CancelPending removes a pending message. It returns false when the message
// is unknown or already delivered.
func (q *Queue) CancelPending(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(q.pending, id)
	if i < 0 {
		return false
	}
	q.pending = slices.Delete(q.pending, i, i+1)
	q.log.Debug("quiet message cancelled", zap.String("id", id))
	return true
}

// Get finds a message in either list.
func (q *Queue) Get(id string) (QuietMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.indexLocked(q.pending, id); i >= 0 {
		return q.pending[i], true
	}
	if i := q.indexLocked(q.delivered, id); i >= 0 {
		return q.delivered[i], true
	}
	return QuietMessage{}, false
}

// Pending returns a copy of the pending list in send order.
func (q *Queue) Pending() []QuietMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.pending)
}

// Delivered returns a copy of the delivered list in delivery order.
func (q *Queue) Delivered() []QuietMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.delivered)
}

func (q *Queue) indexLocked(list []QuietMessage, id string) int {
	return slices.IndexFunc(list, func(m QuietMessage) bool { return m.ID == id })
}

// ConditionKind names c, or "none" for a nil condition.
func ConditionKind(c Condition) string {
	if c == nil {
		return "none"
	}
	return c.Kind()
}
