package session

import (
	"container/list"
	"sync"
	"time"

	"torrentcast/internal/domain/ports"
	"torrentcast/internal/metrics"
)

const (
	DefaultTTL     = 5 * time.Minute
	DefaultMaxSize = 128
)

// Store holds per-user scratch records for one menu. Records expire after TTL
// of inactivity; every Get/Set resets the deadline. When the store is full the
// least-recently-touched record is evicted first. Get never fails: an expired
// or missing record is recreated empty.
type Store struct {
	mu      sync.Mutex
	entries map[ports.UserID]*entry
	order   *list.List // front = most recently touched
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type entry struct {
	user     ports.UserID
	record   *Record
	deadline time.Time
	elem     *list.Element
}

func NewStore(ttl time.Duration, maxSize int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Store{
		entries: make(map[ports.UserID]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the user's live record, creating a fresh empty one when missing
// or expired, and resets the expiry deadline.
func (s *Store) Get(user ports.UserID) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()

	e, ok := s.entries[user]
	if !ok {
		e = s.insertLocked(user, newRecord())
	}
	s.touchLocked(e)
	return e.record
}

// Set replaces the user's record and resets the expiry deadline.
func (s *Store) Set(user ports.UserID, record *Record) {
	if record == nil {
		record = newRecord()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()

	e, ok := s.entries[user]
	if !ok {
		e = s.insertLocked(user, record)
	} else {
		e.record = record
	}
	s.touchLocked(e)
}

// DeleteFields removes the named fields from the user's record, if it is live.
// Deleting fields counts as a touch.
func (s *Store) DeleteFields(user ports.UserID, fields ...string) {
	record := s.Get(user)
	for _, field := range fields {
		record.Delete(field)
	}
}

// Len reports the number of live (non-expired) records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked()
	return len(s.entries)
}

func (s *Store) insertLocked(user ports.UserID, record *Record) *entry {
	// Evict the least-recently-touched entry to stay within maxSize.
	for len(s.entries) >= s.maxSize {
		back := s.order.Back()
		if back == nil {
			break
		}
		s.removeLocked(back.Value.(*entry))
	}

	e := &entry{user: user, record: record}
	e.elem = s.order.PushFront(e)
	s.entries[user] = e
	metrics.BotSessionsActive.Set(float64(len(s.entries)))
	return e
}

func (s *Store) touchLocked(e *entry) {
	e.deadline = s.now().Add(s.ttl)
	s.order.MoveToFront(e.elem)
}

func (s *Store) removeLocked(e *entry) {
	s.order.Remove(e.elem)
	delete(s.entries, e.user)
	metrics.BotSessionsActive.Set(float64(len(s.entries)))
}

func (s *Store) purgeExpiredLocked() {
	now := s.now()
	for {
		back := s.order.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		if e.deadline.After(now) {
			return
		}
		s.removeLocked(e)
	}
}

// Record is one user's mutable scratch data. Its own lock makes single-field
// read-modify-write safe against concurrent request handlers.
type Record struct {
	mu     sync.RWMutex
	values map[string]any
}

func newRecord() *Record {
	return &Record{values: make(map[string]any)}
}

func (r *Record) Value(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

func (r *Record) SetValue(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
}

func (r *Record) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, key)
}

func (r *Record) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}

// Int64 reads a numeric field stored as int64.
func (r *Record) Int64(key string) (int64, bool) {
	v, ok := r.Value(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

// String reads a string field.
func (r *Record) String(key string) (string, bool) {
	v, ok := r.Value(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
