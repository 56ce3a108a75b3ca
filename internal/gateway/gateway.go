// Package gateway exposes bizast's HTTP surface: GET to look a name up,
// POST to publish a signed record, DELETE to stop sponsoring one.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Rendaw/bizast/internal/record"
	"github.com/Rendaw/bizast/internal/state"
	"github.com/Rendaw/bizast/internal/store"
	"github.com/Rendaw/bizast/internal/validate"
)

// Router is the subset of the routing adapter the gateway calls into. It is
// an interface rather than a concrete type so gateway tests can supply a
// fake without spinning up a real DHT server.
type Router interface {
	Set(ctx context.Context, storageKey [20]byte, value []byte) error
	Get(ctx context.Context, storageKey [20]byte) ([]byte, error)
}

// uriSchemePattern matches the prefix of a URI-like string bizast is willing
// to redirect a browser to.
var uriSchemePattern = regexp.MustCompile(`^[a-zA-Z+]+://`)

// Gateway wires the HTTP surface to the storage engine, the validation
// pipeline, durable node state, and the routing adapter.
type Gateway struct {
	store   *store.Storage
	state   *state.Store
	routing Router
	log     *zap.Logger

	mux *http.ServeMux
}

// Config configures a new Gateway.
type Config struct {
	Store   *store.Storage
	State   *state.Store
	Routing Router
	Logger  *zap.Logger
}

// New builds a Gateway and registers its routes.
func New(cfg Config) *Gateway {
	g := &Gateway{
		store:   cfg.Store,
		state:   cfg.State,
		routing: cfg.Routing,
		log:     cfg.Logger,
	}
	g.mux = http.NewServeMux()
	g.registerRoutes()
	return g
}

// registerRoutes wires the three gateway operations using Go's method-prefixed
// mux patterns. GET and DELETE take the rest of the path as the record
// identifier; POST ignores the path and derives the record key from the body.
func (g *Gateway) registerRoutes() {
	g.mux.HandleFunc("GET /{identifier...}", g.handleGet)
	g.mux.HandleFunc("POST /{identifier...}", g.handlePost)
	g.mux.HandleFunc("DELETE /{identifier...}", g.handleDelete)
}

// Handler returns the fully wrapped http.Handler, with panic-recovery,
// request-ID, and logging middleware applied, listed outermost first.
func (g *Gateway) Handler() http.Handler {
	var h http.Handler = g.mux
	h = LoggingMiddleware(g.log)(h)
	h = RequestIDMiddleware()(h)
	h = RecoveryMiddleware(g.log)(h)
	return h
}

// stripGatewayPrefix removes an optional bz:// or web+bz:// scheme prefix
// from a record identifier, per spec.md §4.F.
func stripGatewayPrefix(path string) string {
	for _, prefix := range []string{"web+bz://", "bz://"} {
		if strings.HasPrefix(path, prefix) {
			return strings.TrimPrefix(path, prefix)
		}
	}
	return path
}

// splitIdentifier separates a "name:fingerprint" or "name:fingerprint/subpath"
// identifier into its record key and optional subpath.
func splitIdentifier(identifier string) (recordKey, subpath string) {
	if idx := strings.Index(identifier, "/"); idx >= 0 {
		return identifier[:idx], identifier[idx+1:]
	}
	return identifier, ""
}

func (g *Gateway) handleGet(w http.ResponseWriter, r *http.Request) {
	identifier, err := url.PathUnescape(r.PathValue("identifier"))
	if err != nil {
		writeError(w, http.StatusNotFound, "malformed identifier")
		return
	}
	identifier = stripGatewayPrefix(identifier)
	recordKey, subpath := splitIdentifier(identifier)

	if _, _, err := record.ParseRecordKey(recordKey); err != nil {
		writeError(w, http.StatusNotFound, "malformed identifier")
		return
	}

	storageKey := record.StorageKey(recordKey)

	raw, ok := g.store.Get(string(storageKey[:]))
	if !ok {
		fetched, err := g.routing.Get(r.Context(), storageKey)
		if err != nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		raw = fetched
	}

	rec, err := record.Decode(raw)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if _, err := validate.Validate(rec, &storageKey, nil); err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	g.respondGet(w, r, rec, subpath)
}

func (g *Gateway) respondGet(w http.ResponseWriter, r *http.Request, rec *record.Record, subpath string) {
	accept := r.Header.Get("Accept")
	if !strings.Contains(accept, "text/html") {
		writeJSON(w, http.StatusOK, rec)
		return
	}

	target := rec.Message
	if subpath != "" {
		target = strings.TrimSuffix(target, "/") + "/" + subpath
	}

	if uriSchemePattern.MatchString(target) && !strings.ContainsAny(target, `'"`) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = redirectTemplate.Execute(w, target)
		return
	}

	writeText(w, http.StatusOK, rec.Message)
}

func (g *Gateway) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := readLimitedBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large")
		return
	}

	rec, err := record.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed record")
		return
	}

	recordKey, err := rec.RecordKey()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	storageKey := record.StorageKey(recordKey)

	var previous *record.Record
	if raw, ok := g.store.Get(string(storageKey[:])); ok {
		if prev, err := record.Decode(raw); err == nil {
			previous = prev
		}
	}

	if _, err := validate.Validate(rec, &storageKey, previous); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	encoded, err := record.Encode(rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode failed")
		return
	}

	if err := g.store.Put(string(storageKey[:]), encoded); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g.state.Update(func(st *state.State) {
		st.Republish[recordKey] = string(encoded)
	})
	if err := g.state.Save(); err != nil && g.log != nil {
		g.log.Warn("gateway: failed to persist state after publish", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := g.routing.Set(ctx, storageKey, encoded); err != nil {
		writeError(w, http.StatusBadGateway, "routing layer unreachable, will retry on next republish cycle")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (g *Gateway) handleDelete(w http.ResponseWriter, r *http.Request) {
	identifier, err := url.PathUnescape(r.PathValue("identifier"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed identifier")
		return
	}
	identifier = stripGatewayPrefix(identifier)
	recordKey, _ := splitIdentifier(identifier)

	if _, _, err := record.ParseRecordKey(recordKey); err != nil {
		writeError(w, http.StatusBadRequest, "malformed identifier")
		return
	}

	var existed bool
	g.state.Update(func(st *state.State) {
		if _, ok := st.Republish[recordKey]; ok {
			delete(st.Republish, recordKey)
			existed = true
		}
	})

	if !existed {
		writeError(w, http.StatusBadRequest, "not sponsoring that record")
		return
	}

	if err := g.state.Save(); err != nil && g.log != nil {
		g.log.Warn("gateway: failed to persist state after cancel", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "key": recordKey})
}

// maxBodyBytes bounds a POST body to roughly the size of a single record
// plus encoding overhead; the wire contract never needs more.
const maxBodyBytes = 4096

func readLimitedBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, errors.New("missing body")
	}
	defer r.Body.Close()
	limited := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return io.ReadAll(limited)
}
