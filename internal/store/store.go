// Package store implements bizast's popularity-bounded storage engine: the
// component the routing layer calls into on every DHT put and get.
//
// It tracks three things per key: the stored value and its insertion age (the
// age list), how "interesting" the key has been to local lookups (the
// popularity queue), and, for keys that have been looked up but are not
// stored here, a staged popularity that becomes real once the key is first
// stored (the future popularity queue). Both queues are capped at MaxItems; the least popular
// key is evicted first.
package store

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// ErrRejected is returned by Put when the caller's Validator refused to
// admit a new or replacement value.
var ErrRejected = errors.New("store: value rejected by validator")

// Validator is invoked by Put before a value is admitted or replaced. oldValue
// is nil if the key is not currently stored. Returning a non-nil error
// rejects the put; the existing value, if any, is left untouched.
type Validator func(key string, newValue, oldValue []byte) error

// Item is a key/value pair returned by the iteration methods.
type Item struct {
	Key   string
	Value []byte
}

type ageEntry struct {
	key      string
	birthday time.Time
	value    []byte
}

// Storage is bizast's bounded, popularity-evicting key/value store.
type Storage struct {
	mu sync.Mutex

	maxItems int
	step     float64 // seconds added to a key's score on each interest bump
	now      func() time.Time
	validate Validator

	ageOrder *list.List               // ordered oldest-birthday-first
	ageIndex map[string]*list.Element // key -> element in ageOrder

	popularity       *priorityQueue
	futurePopularity *priorityQueue
}

// Options configures a new Storage.
type Options struct {
	// MaxItems bounds the popularity and future-popularity queues
	// independently; each may hold at most this many keys.
	MaxItems int
	// Step is the amount, in seconds of virtual time, that a single read
	// bumps a key's popularity score. cmd/bizastd uses a week (604800s).
	Step time.Duration
	// Now, if set, overrides time.Now for deterministic tests.
	Now func() time.Time
	// Validate is run before every admission; see Validator.
	Validate Validator
}

// New creates a Storage engine with the given options.
func New(opts Options) *Storage {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	validate := opts.Validate
	if validate == nil {
		validate = func(string, []byte, []byte) error { return nil }
	}
	return &Storage{
		maxItems:         opts.MaxItems,
		step:             opts.Step.Seconds(),
		now:              now,
		validate:         validate,
		ageOrder:         list.New(),
		ageIndex:         make(map[string]*list.Element),
		popularity:       newPriorityQueue(),
		futurePopularity: newPriorityQueue(),
	}
}

// Put validates and stores a value under key. If the key already holds a
// value, the validator sees it as oldValue and, on acceptance, the value is
// replaced in place without resetting the key's age or popularity. If the
// key is new, it starts aging from now and inherits any staged future
// popularity score, promoting it into the real popularity queue.
func (s *Storage) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldValue []byte
	elem, exists := s.ageIndex[key]
	if exists {
		oldValue = elem.Value.(*ageEntry).value
	}

	if err := s.validate(key, value, oldValue); err != nil {
		return err
	}

	if exists {
		elem.Value.(*ageEntry).value = value
	} else {
		entry := &ageEntry{key: key, birthday: s.now(), value: value}
		s.ageIndex[key] = s.ageOrder.PushBack(entry)

		score, hadFuture := s.futurePopularity.remove(key)
		if !hadFuture {
			score = timeToScore(s.now())
		}
		s.popularity.set(key, score)
	}

	s.cull()
	return nil
}

// Get retrieves a value and counts the lookup as one unit of interest in the
// key, per incPopularity.
func (s *Storage) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.incPopularity(key)
	s.cull()

	elem, exists := s.ageIndex[key]
	if !exists {
		return nil, false
	}
	return elem.Value.(*ageEntry).value, true
}

// incPopularity records one unit of interest in key: if the key is already
// tracked in the popularity queue, its score is bumped forward by one step;
// otherwise the bump accumulates in the future popularity queue until the
// key is actually stored.
func (s *Storage) incPopularity(key string) {
	if score, ok := s.popularity.get(key); ok {
		s.popularity.set(key, score+s.step)
		return
	}
	base, ok := s.futurePopularity.get(key)
	if !ok {
		base = timeToScore(s.now())
	}
	s.futurePopularity.set(key, base+s.step)
}

// cull evicts the least popular key from each queue once it exceeds
// maxItems. The two queues are culled independently: dropping a
// future-popularity entry never touches stored data, since nothing has been
// stored under that key yet.
func (s *Storage) cull() {
	if s.maxItems <= 0 {
		return
	}
	if s.popularity.Len() > s.maxItems {
		key, _, _ := s.popularity.popMin()
		if elem, ok := s.ageIndex[key]; ok {
			s.ageOrder.Remove(elem)
			delete(s.ageIndex, key)
		}
	}
	if s.futurePopularity.Len() > s.maxItems {
		s.futurePopularity.popMin()
	}
}

// IterOlderThan returns every stored item whose birthday is at least age
// old, in ascending age order (oldest first). Because ageOrder is
// maintained in insertion order and birthdays are monotonic with insertion,
// iteration can stop at the first item younger than the cutoff.
func (s *Storage) IterOlderThan(age time.Duration) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-age)
	var out []Item
	for e := s.ageOrder.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*ageEntry)
		if entry.birthday.After(cutoff) {
			break
		}
		out = append(out, Item{Key: entry.key, Value: entry.value})
	}
	return out
}

// IterAll returns every stored item in ascending age order, after running
// cull so the snapshot reflects current bounds.
func (s *Storage) IterAll() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cull()
	out := make([]Item, 0, s.ageOrder.Len())
	for e := s.ageOrder.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*ageEntry)
		out = append(out, Item{Key: entry.key, Value: entry.value})
	}
	return out
}

// Len returns the number of keys currently holding a stored value.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ageOrder.Len()
}

func timeToScore(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
