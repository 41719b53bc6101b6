package ledger

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/gemboard/sys"
)

// Entry is one user's running reaction counts. Total always equals the sum
// of Emojis and an entry with a zero total is never stored.
type Entry struct {
	Total  int         `json:"total"`
	Emojis map[Key]int `json:"emojis"`
}

// Count returns how many times key was counted for this entry.
func (e Entry) Count(key Key) int {
	return e.Emojis[key]
}

func (e Entry) clone() Entry {
	out := Entry{Total: e.Total, Emojis: make(map[Key]int, len(e.Emojis))}
	for k, v := range e.Emojis {
		out.Emojis[k] = v
	}
	return out
}

// EmojiCount pairs a key with its count.
type EmojiCount struct {
	Key   Key
	Count int
}

// Sorted lists the entry's emojis by count descending, ties by key text.
func (e Entry) Sorted() []EmojiCount {
	out := make([]EmojiCount, 0, len(e.Emojis))
	for k, v := range e.Emojis {
		out = append(out, EmojiCount{Key: k, Count: v})
	}
	slices.SortFunc(out, func(a, b EmojiCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Key.String(), b.Key.String())
	})
	return out
}

// Record is a user entry in first-seen order, the unit the store persists.
type Record struct {
	UserID snowflake.ID
	Entry  Entry
}

// Usage tracks when a custom emoji was last added as a reaction.
type Usage struct {
	LastUsed int64 `json:"lastUsed"` // unix milliseconds
	Count    int   `json:"count"`
}

func (u Usage) Time() time.Time {
	if u.LastUsed == 0 {
		return time.Time{}
	}
	return time.UnixMilli(u.LastUsed)
}

// Store persists the ledger. Both structures are always written whole.
type Store interface {
	LoadLedger() ([]Record, error)
	SaveLedger(records []Record) error
	LoadUsage() (map[Key]Usage, error)
	SaveUsage(usage map[Key]Usage) error
}

// Ranked is one leaderboard row.
type Ranked struct {
	UserID snowflake.ID
	Total  int
}

// Ledger holds the authoritative reaction counters. Every mutation finishes
// in memory under mu before the store is written.
type Ledger struct {
	mu    sync.RWMutex
	users map[snowflake.ID]*Entry
	order []snowflake.ID
	usage map[Key]Usage

	store         Store
	ledgerVersion uint64
	usageVersion  uint64

	saveMu      sync.Mutex
	savedLedger uint64
	savedUsage  uint64
}

// New returns an empty ledger writing through to store. A nil store keeps
// everything in memory.
func New(store Store) *Ledger {
	return &Ledger{
		users: make(map[snowflake.ID]*Entry),
		usage: make(map[Key]Usage),
		store: store,
	}
}

// Open loads both persisted structures, repairing entries that break the
// total invariant.
func Open(store Store) (*Ledger, error) {
	l := New(store)

	records, err := store.LoadLedger()
	if err != nil {
		return nil, err
	}
	records, issues := Repair(records)
	for _, issue := range issues {
		sys.LogLedger(sys.MsgLedgerRepaired, issue)
	}
	for _, r := range records {
		e := r.Entry.clone()
		l.users[r.UserID] = &e
		l.order = append(l.order, r.UserID)
	}

	usage, err := store.LoadUsage()
	if err != nil {
		return nil, err
	}
	for k, u := range usage {
		l.usage[k] = u
	}

	sys.LogLedger(sys.MsgLedgerLoaded, len(l.users), len(l.usage))
	return l, nil
}

// Add counts one reaction on a message authored by userID and returns the
// updated entry.
func (l *Ledger) Add(userID snowflake.ID, key Key) Entry {
	l.mu.Lock()
	e, ok := l.users[userID]
	if !ok {
		e = &Entry{Emojis: make(map[Key]int)}
		l.users[userID] = e
		l.order = append(l.order, userID)
	}
	e.Emojis[key]++
	e.Total++
	out := e.clone()
	records, version := l.commitLocked()
	l.mu.Unlock()

	l.persistLedger(records, version)
	return out
}

// Remove uncounts one reaction. Reactions that were never counted are
// ignored, so counts never go negative. exists reports whether the user
// still has an entry afterwards; changed is false for ignored removals.
func (l *Ledger) Remove(userID snowflake.ID, key Key) (entry Entry, exists, changed bool) {
	l.mu.Lock()
	e, ok := l.users[userID]
	if !ok || e.Emojis[key] <= 0 {
		if ok {
			entry, exists = e.clone(), true
		}
		l.mu.Unlock()
		return entry, exists, false
	}

	e.Emojis[key]--
	e.Total--
	if e.Emojis[key] <= 0 {
		delete(e.Emojis, key)
	}
	if e.Total <= 0 {
		delete(l.users, userID)
		l.order = slices.DeleteFunc(l.order, func(id snowflake.ID) bool { return id == userID })
	} else {
		entry, exists = e.clone(), true
	}
	records, version := l.commitLocked()
	l.mu.Unlock()

	l.persistLedger(records, version)
	return entry, exists, true
}

// Snapshot returns a copy of a user's entry.
func (l *Ledger) Snapshot(userID snowflake.ID) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.users[userID]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Records returns every entry in first-seen order.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.recordsLocked()
}

// Rank orders users by total descending. Equal totals keep first-seen order.
func (l *Ledger) Rank() []Ranked {
	l.mu.RLock()
	out := make([]Ranked, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, Ranked{UserID: id, Total: l.users[id].Total})
	}
	l.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Ranked) int {
		return cmp.Compare(b.Total, a.Total)
	})
	return out
}

// Touch marks a custom emoji as used at t. Standard emojis are not tracked.
func (l *Ledger) Touch(key Key, t time.Time) (Usage, bool) {
	if !key.IsCustom() {
		return Usage{}, false
	}

	l.mu.Lock()
	u := l.usage[key]
	u.LastUsed = t.UnixMilli()
	u.Count++
	l.usage[key] = u
	l.usageVersion++
	version := l.usageVersion
	usage := make(map[Key]Usage, len(l.usage))
	for k, v := range l.usage {
		usage[k] = v
	}
	l.mu.Unlock()

	l.persistUsage(usage, version)
	return u, true
}

// LastUsed returns when key was last added, or the zero time if never.
func (l *Ledger) LastUsed(key Key) time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.usage[key].Time()
}

// UsageByID folds usage records onto emoji ids so renamed emojis still
// match, keeping the most recent use and summing counts.
func (l *Ledger) UsageByID() map[snowflake.ID]Usage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[snowflake.ID]Usage, len(l.usage))
	for k, u := range l.usage {
		if !k.IsCustom() {
			continue
		}
		cur := out[k.ID]
		cur.Count += u.Count
		cur.LastUsed = max(cur.LastUsed, u.LastUsed)
		out[k.ID] = cur
	}
	return out
}

// Totals sums every user's reactions and their count of key.
func (l *Ledger) Totals(key Key) (reactions, matching int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.users {
		reactions += e.Total
		matching += e.Emojis[key]
	}
	return reactions, matching
}

// Len is the number of users with a non-zero total.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.users)
}

func (l *Ledger) recordsLocked() []Record {
	out := make([]Record, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, Record{UserID: id, Entry: l.users[id].clone()})
	}
	return out
}

func (l *Ledger) commitLocked() ([]Record, uint64) {
	l.ledgerVersion++
	return l.recordsLocked(), l.ledgerVersion
}

// persistLedger writes a snapshot unless a newer one already hit the store.
func (l *Ledger) persistLedger(records []Record, version uint64) {
	if l.store == nil {
		return
	}
	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	if version <= l.savedLedger {
		return
	}
	if err := l.store.SaveLedger(records); err != nil {
		sys.LogError(sys.MsgLedgerSaveFail, err)
		return
	}
	l.savedLedger = version
}

func (l *Ledger) persistUsage(usage map[Key]Usage, version uint64) {
	if l.store == nil {
		return
	}
	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	if version <= l.savedUsage {
		return
	}
	if err := l.store.SaveUsage(usage); err != nil {
		sys.LogError(sys.MsgUsageSaveFail, err)
		return
	}
	l.savedUsage = version
}
