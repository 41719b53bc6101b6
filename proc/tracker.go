package proc

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/gemboard/ledger"
	"github.com/leeineian/gemboard/milestone"
	"github.com/leeineian/gemboard/sys"
)

// ReactionEvent is a reaction add or remove resolved to the author of the
// reacted-to message.
type ReactionEvent struct {
	Removed  bool
	GuildID  snowflake.ID
	AuthorID snowflake.ID
	Key      ledger.Key
	At       time.Time
}

func (e ReactionEvent) kind() string {
	if e.Removed {
		return "remove"
	}
	return "add"
}

// GlyphWarmer fills the emoji asset cache ahead of rendering.
type GlyphWarmer interface {
	Ensure(key ledger.Key) (string, bool)
}

// Tracker applies reaction events one at a time, in arrival order.
type Tracker struct {
	Ledger     *ledger.Ledger
	Gem        ledger.Key
	Glyphs     GlyphWarmer
	Reconciler *milestone.Reconciler
	Roles      func(guildID snowflake.ID) milestone.Roles

	queue chan ReactionEvent
	stop  chan struct{}
	mu    sync.RWMutex // held for reading by Submit while it sends
	wg    sync.WaitGroup
	once  sync.Once
}

func NewTracker(l *ledger.Ledger, gem ledger.Key, buffer int) *Tracker {
	return &Tracker{
		Ledger: l,
		Gem:    gem,
		queue:  make(chan ReactionEvent, buffer),
		stop:   make(chan struct{}),
	}
}

// Submit enqueues ev, waiting for room. It gives up when ctx ends or the
// tracker has stopped.
func (t *Tracker) Submit(ctx context.Context, ev ReactionEvent) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	select {
	case <-t.stop:
	default:
		select {
		case t.queue <- ev:
			return true
		case <-ctx.Done():
		case <-t.stop:
		}
	}
	sys.LogLedger(sys.MsgTrackerQueued, ev.kind(), ev.AuthorID)
	return false
}

// Start launches the single consumer. It runs until Stop, applying every
// accepted event; once ctx ends, events are applied without cancellation.
func (t *Tracker) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case ev := <-t.queue:
				t.apply(liveContext(ctx), ev)
			case <-t.stop:
				// wait out submitters that were mid-send when stop closed
				t.mu.Lock()
				t.mu.Unlock()
				t.drain(context.WithoutCancel(ctx))
				return
			}
		}
	}()
}

// Stop rejects further submissions, applies what is already queued and
// waits for the consumer to exit.
func (t *Tracker) Stop() {
	t.once.Do(func() { close(t.stop) })
	t.wg.Wait()
}

func (t *Tracker) drain(ctx context.Context) {
	for {
		select {
		case ev := <-t.queue:
			t.apply(ctx, ev)
		default:
			return
		}
	}
}

func liveContext(ctx context.Context) context.Context {
	if ctx.Err() != nil {
		return context.WithoutCancel(ctx)
	}
	return ctx
}

func (t *Tracker) apply(ctx context.Context, ev ReactionEvent) {
	defer func() {
		if r := recover(); r != nil {
			sys.LogError(sys.MsgLoaderPanicRecovered, r)
		}
	}()

	if ev.Removed {
		t.applyRemove(ctx, ev)
		return
	}
	t.applyAdd(ctx, ev)
}

func (t *Tracker) applyAdd(ctx context.Context, ev ReactionEvent) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	t.Ledger.Touch(ev.Key, at)

	if t.Glyphs != nil {
		key := ev.Key
		sys.SafeGo(func() { t.Glyphs.Ensure(key) })
	}

	entry := t.Ledger.Add(ev.AuthorID, ev.Key)
	sys.LogLedger(sys.MsgLedgerAdded, ev.Key, ev.AuthorID, entry.Total)

	if ev.Key == t.Gem {
		gems := entry.Count(t.Gem)
		sys.LogLedger(sys.MsgLedgerGemChange, ev.AuthorID, gems)
		t.reconcile(ctx, ev.GuildID, ev.AuthorID, gems)
	}
}

func (t *Tracker) applyRemove(ctx context.Context, ev ReactionEvent) {
	entry, exists, changed := t.Ledger.Remove(ev.AuthorID, ev.Key)
	if !changed {
		sys.LogLedger(sys.MsgLedgerIgnored, ev.Key, ev.AuthorID)
		return
	}
	sys.LogLedger(sys.MsgLedgerRemoved, ev.Key, ev.AuthorID)

	if ev.Key == t.Gem && exists {
		gems := entry.Count(t.Gem)
		sys.LogLedger(sys.MsgLedgerGemChange, ev.AuthorID, gems)
		t.reconcile(ctx, ev.GuildID, ev.AuthorID, gems)
	}
}

func (t *Tracker) reconcile(ctx context.Context, guildID, userID snowflake.ID, gems int) {
	if t.Reconciler == nil || t.Roles == nil {
		return
	}
	roles := t.Roles(guildID)
	if roles == nil {
		return
	}
	t.Reconciler.Reconcile(ctx, roles, userID, gems)
}
