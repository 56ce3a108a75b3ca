// Package state persists a node's durable, cross-restart configuration:
// its DHT identity, routing parameters, and the set of records it is
// responsible for republishing.
package state

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	bizaststorage "github.com/Rendaw/bizast/pkg/storage"
)

// BootstrapNode is a single host:port pair the node last used, or should
// use, to rejoin the DHT.
type BootstrapNode struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// State is the JSON document persisted at <cache>/<instance>/state.json.
type State struct {
	KSize     int               `json:"ksize"`
	Alpha     int               `json:"alpha"`
	Seed      string            `json:"seed,omitempty"` // hex-encoded DHT node seed
	Bootstrap []BootstrapNode   `json:"bootstrap"`
	Republish map[string]string `json:"republish"` // record key -> raw signed record JSON
}

// Default returns the state a freshly bootstrapped node starts with.
func Default() *State {
	return &State{
		KSize:     20,
		Alpha:     3,
		Bootstrap: nil,
		Republish: make(map[string]string),
	}
}

// Store owns a State value plus the file it is persisted to, guarding all
// access with a mutex so the daemon, republisher, and gateway can share it
// safely. Nothing saves it on a timer: callers invoke Save after changing
// it, and the daemon saves once more on shutdown.
type Store struct {
	mu   sync.Mutex
	path string
	data *State
}

// Load reads state from path, or returns a fresh Default() state if the
// file does not exist or cannot be parsed. A missing or corrupt state file
// is not fatal: bizast always has a well-defined starting state.
func Load(path string) *Store {
	s := &Store{path: path, data: Default()}

	raw, err := os.ReadFile(path)
	if err != nil {
		return s
	}

	var loaded State
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return s
	}
	if loaded.Republish == nil {
		loaded.Republish = make(map[string]string)
	}
	s.data = &loaded
	return s
}

// Save atomically persists the current state to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	if err := bizaststorage.AtomicWriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("state: write %s: %w", s.path, err)
	}
	return nil
}

// View runs fn with read access to the current state. fn must not retain
// the pointer beyond the call.
func (s *Store) View(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

// Update runs fn with mutable access to the current state.
func (s *Store) Update(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

// SeedBytes decodes the stored hex DHT seed, if any.
func (st *State) SeedBytes() ([]byte, error) {
	if st.Seed == "" {
		return nil, nil
	}
	return hex.DecodeString(st.Seed)
}

// SetSeed hex-encodes and stores a DHT seed.
func (st *State) SetSeed(seed []byte) {
	st.Seed = hex.EncodeToString(seed)
}
