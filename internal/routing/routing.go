// Package routing adapts bizast's storage engine to the Kademlia DHT: it is
// the only part of the node that speaks BEP 44 wire format, and the only
// part that knows about bootstrap nodes and the underlying dht.Server.
package routing

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/anacrolix/dht/v2"
	"github.com/anacrolix/dht/v2/bep44"
	"github.com/anacrolix/dht/v2/exts/getput"
	"github.com/anacrolix/dht/v2/krpc"
	"github.com/anacrolix/torrent/bencode"
)

// Errors returned by Adapter.
var (
	ErrNotStarted  = errors.New("routing: adapter not started")
	ErrAlreadyUp   = errors.New("routing: adapter already started")
	ErrStoreFailed = errors.New("routing: failed to store record")
	ErrFetchFailed = errors.New("routing: failed to fetch record")
)

// PutTimeout and GetTimeout bound a single DHT round trip.
const (
	PutTimeout = 30 * time.Second
	GetTimeout = 30 * time.Second
)

// Inbound is invoked whenever a peer announces a put for a key this node's
// DHT server is responsible for storing. It runs bizast's validation
// pipeline before the value is admitted locally, matching the way a
// legitimate client's own store.Storage.Put is gated.
type Inbound func(storageKey [20]byte, value []byte) error

// Logger is the subset of a structured logger the adapter needs.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DefaultKSize and DefaultAlpha match the Kademlia bucket width and lookup
// concurrency bizast has always used (see internal/state.Default).
const (
	DefaultKSize = 20
	DefaultAlpha = 3
)

// Config configures an Adapter.
type Config struct {
	// Port is the local UDP port the DHT server listens on.
	Port int
	// BootstrapNodes is a list of host:port addresses used to join the
	// DHT. DNS names are resolved at Start time.
	BootstrapNodes []string
	// NodeIDSeed, if non-empty, deterministically derives this node's DHT
	// ID so it stays stable across restarts instead of a random ID forcing
	// the rest of the network to relearn this node's position every time
	// it comes back up.
	NodeIDSeed []byte
	// KSize bounds how many resolved bootstrap addresses Start will keep
	// per lookup, mirroring the Kademlia bucket width. Zero means
	// DefaultKSize.
	KSize int
	// Alpha bounds how many bootstrap hosts are resolved concurrently,
	// mirroring Kademlia's alpha lookup-concurrency parameter. Zero means
	// DefaultAlpha.
	Alpha int
	// Inbound, if set, validates values other nodes try to store on this
	// node before they are admitted to the routing table's storage.
	Inbound Inbound
	Logger  Logger
}

// Adapter wraps a *dht.Server with bizast's Put/Get vocabulary: a storage
// key is always a 20-byte SHA-1 digest (see internal/record.StorageKey),
// and the stored value is always the raw bytes of a signed record, with no
// further wire transformation beyond BEP 44's bencoded envelope.
type Adapter struct {
	cfg Config

	mu      sync.RWMutex
	server  *dht.Server
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates an Adapter. The DHT server is not started until Start is
// called.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// Start opens the DHT server's UDP socket and begins bootstrapping.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return ErrAlreadyUp
	}

	conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", a.cfg.Port))
	if err != nil {
		return fmt.Errorf("routing: listen udp: %w", err)
	}

	kSize := a.cfg.KSize
	if kSize <= 0 {
		kSize = DefaultKSize
	}
	alpha := a.cfg.Alpha
	if alpha <= 0 {
		alpha = DefaultAlpha
	}

	serverConfig := dht.ServerConfig{
		Conn: conn,
		StartingNodes: func() ([]dht.Addr, error) {
			return resolveBootstrapNodes(a.cfg.BootstrapNodes, kSize, alpha)
		},
	}
	if len(a.cfg.NodeIDSeed) > 0 {
		serverConfig.NodeId = krpc.ID(sha1.Sum(a.cfg.NodeIDSeed))
	}
	if a.cfg.Inbound != nil {
		serverConfig.Store = &validatingStore{inbound: a.cfg.Inbound, logger: a.cfg.Logger}
	}

	server, err := dht.NewServer(&serverConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("routing: new dht server: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.server = server
	a.ctx = loopCtx
	a.cancel = cancel
	a.started = true

	if a.cfg.Logger != nil {
		a.cfg.Logger.Infof("routing: dht server listening on :%d, node id %x", a.cfg.Port, server.ID())
	}

	return nil
}

// Stop closes the DHT server and releases its socket.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	a.cancel()
	a.server.Close()
	a.started = false
	return nil
}

// Set publishes value as an immutable BEP 44 item at storageKey, retrying
// across the DHT's closest nodes via the getput extension.
func (a *Adapter) Set(ctx context.Context, storageKey [20]byte, value []byte) error {
	server, err := a.runningServer()
	if err != nil {
		return err
	}

	putCtx, cancel := context.WithTimeout(ctx, PutTimeout)
	defer cancel()

	put := bep44.Put{V: value}
	_, err = getput.Put(putCtx, storageKey, server, nil, func(int64) bep44.Put {
		return put
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return nil
}

// Get fetches the value stored at storageKey, if any node in the DHT holds
// it.
func (a *Adapter) Get(ctx context.Context, storageKey [20]byte) ([]byte, error) {
	server, err := a.runningServer()
	if err != nil {
		return nil, err
	}

	getCtx, cancel := context.WithTimeout(ctx, GetTimeout)
	defer cancel()

	result, stats, err := getput.Get(getCtx, storageKey, server, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: tried %d nodes, %d responses: %v",
			ErrFetchFailed, stats.NumAddrsTried, stats.NumResponses, err)
	}
	return result.V.([]byte), nil
}

// Stats is a snapshot of routing-table health. cmd/bizastd reads its
// Bootstrap list to persist bootstrap hints; the gateway does not expose it.
type Stats struct {
	NodeID    string
	NumNodes  int
	Bootstrap []string
}

// Stats reports the current routing-table size and configured bootstrap
// nodes.
func (a *Adapter) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Stats{Bootstrap: a.cfg.BootstrapNodes}
	if a.server != nil {
		s.NodeID = fmt.Sprintf("%x", a.server.ID())
		s.NumNodes = a.server.NumNodes()
	}
	return s
}

func (a *Adapter) runningServer() (*dht.Server, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.started {
		return nil, ErrNotStarted
	}
	return a.server, nil
}

// resolveBootstrapNodes resolves host:port bootstrap addresses to dht.Addr
// values, skipping any entry that fails to resolve rather than failing the
// whole join: one unreachable bootstrap host should not block startup.
// Resolution runs at most alpha hosts at a time, and the result is capped
// at kSize addresses, mirroring the same concurrency and bucket-width
// bounds the rest of the routing table uses.
func resolveBootstrapNodes(nodes []string, kSize, alpha int) ([]dht.Addr, error) {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	if kSize <= 0 {
		kSize = DefaultKSize
	}

	type resolved struct {
		addr dht.Addr
		ok   bool
	}

	results := make([]resolved, len(nodes))
	sem := make(chan struct{}, alpha)
	var wg sync.WaitGroup

	for i, node := range nodes {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, node string) {
			defer wg.Done()
			defer func() { <-sem }()

			host, portStr, err := net.SplitHostPort(node)
			if err != nil {
				return
			}
			ips, err := net.LookupIP(host)
			if err != nil {
				return
			}
			port := parsePort(portStr)
			for _, ip := range ips {
				v4 := ip.To4()
				if v4 == nil {
					continue
				}
				results[i] = resolved{addr: dht.NewAddr(&net.UDPAddr{IP: v4, Port: port}), ok: true}
				return
			}
		}(i, node)
	}
	wg.Wait()

	var addrs []dht.Addr
	for _, r := range results {
		if !r.ok {
			continue
		}
		addrs = append(addrs, r.addr)
		if len(addrs) >= kSize {
			break
		}
	}
	return addrs, nil
}

func parsePort(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// validatingStore implements the dht package's bep44.Store interface,
// running bizast's validation pipeline before accepting a value a peer
// tries to put on this node.
type validatingStore struct {
	mu      sync.Mutex
	values  map[[20]byte][]byte
	inbound Inbound
	logger  Logger
}

func (s *validatingStore) Put(key [20]byte, v bep44.Item) error {
	raw, ok := v.V.([]byte)
	if !ok {
		encoded, err := bencode.Marshal(v.V)
		if err != nil {
			return err
		}
		raw = encoded
	}

	if s.inbound != nil {
		if err := s.inbound(key, raw); err != nil {
			if s.logger != nil {
				s.logger.Warnf("routing: rejected inbound put for %x: %v", key, err)
			}
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[[20]byte][]byte)
	}
	s.values[key] = raw
	return nil
}

func (s *validatingStore) Get(key [20]byte) (bep44.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.values[key]
	if !ok {
		return bep44.Item{}, false
	}
	return bep44.Item{V: raw}, true
}
