package bot

import (
	"context"
	"log/slog"
	"sync"
)

// Notifier delivers replies produced outside a request, such as the result
// of a deferred verification. Notify is called with the identity's session
// lock held and must not call back into the Router.
type Notifier interface {
	Notify(ctx context.Context, identity string, replies []Reply)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, identity string, replies []Reply)

func (f NotifierFunc) Notify(ctx context.Context, identity string, replies []Reply) {
	f(ctx, identity, replies)
}

// Outbox buffers deferred replies per identity until a transport drains
// them. Each identity keeps at most limit replies; the oldest are dropped.
type Outbox struct {
	mu     sync.Mutex
	queues map[string][]Reply
	limit  int
	logger *slog.Logger
}

func NewOutbox(limit int, logger *slog.Logger) *Outbox {
	if limit <= 0 {
		limit = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{
		queues: make(map[string][]Reply),
		limit:  limit,
		logger: logger,
	}
}

func (o *Outbox) Notify(_ context.Context, identity string, replies []Reply) {
	if len(replies) == 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	q := append(o.queues[identity], replies...)
	if over := len(q) - o.limit; over > 0 {
		o.logger.Warn("outbox full, dropping oldest replies",
			slog.String("identity", identity),
			slog.Int("dropped", over))
		q = append([]Reply(nil), q[over:]...)
	}
	o.queues[identity] = q
}

// Drain returns and clears the queued replies for identity.
func (o *Outbox) Drain(identity string) []Reply {
	o.mu.Lock()
	defer o.mu.Unlock()

	q := o.queues[identity]
	delete(o.queues, identity)
	return q
}

// Len returns the number of queued replies for identity.
func (o *Outbox) Len(identity string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queues[identity])
}
