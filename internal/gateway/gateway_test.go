package gateway

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rendaw/bizast/internal/record"
	"github.com/Rendaw/bizast/internal/state"
	"github.com/Rendaw/bizast/internal/store"
	"github.com/Rendaw/bizast/internal/validate"
)

type fakeRouter struct {
	mu      sync.Mutex
	values  map[[20]byte][]byte
	failGet bool
	failSet bool
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{values: make(map[[20]byte][]byte)}
}

func (f *fakeRouter) Set(_ context.Context, key [20]byte, value []byte) error {
	if f.failSet {
		return assert.AnError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeRouter) Get(_ context.Context, key [20]byte) ([]byte, error) {
	if f.failGet {
		return nil, assert.AnError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return nil, assert.AnError
	}
	return v, nil
}

func newTestGateway(t *testing.T, router Router) (*Gateway, ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	s := store.New(store.Options{
		MaxItems: 100,
		Step:     time.Hour,
		Validate: func(key string, newValue, oldValue []byte) error {
			newRec, err := record.Decode(newValue)
			if err != nil {
				return err
			}
			var prev *record.Record
			if oldValue != nil {
				prev, _ = record.Decode(oldValue)
			}
			var storageKey [record.StorageKeySize]byte
			copy(storageKey[:], key)
			_, err = validate.Validate(newRec, &storageKey, prev)
			return err
		},
	})

	st := state.Load(filepath.Join(t.TempDir(), "state.json"))

	g := New(Config{
		Store:   s,
		State:   st,
		Routing: router,
	})
	return g, pub, priv
}

func signedRecordJSON(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, name, message string, version int64) []byte {
	t.Helper()
	rec := &record.Record{
		Name:      name,
		Message:   message,
		Version:   version,
		Key:       hex.EncodeToString(pub),
		Signature: record.Sign(priv, name, message, version),
	}
	data, err := record.Encode(rec)
	require.NoError(t, err)
	return data
}

func TestPublishThenLookupJSON(t *testing.T) {
	router := newFakeRouter()
	g, pub, priv := newTestGateway(t, router)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	body := signedRecordJSON(t, pub, priv, "home", "https://example.org/", 0)
	resp, err := http.Post(srv.URL+"/ignored", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var rec record.Record
	require.NoError(t, json.Unmarshal(body, &rec))
	fp, err := rec.Fingerprint()
	require.NoError(t, err)
	recordKey := record.RecordKey("home", fp)

	getResp, err := http.Get(srv.URL + "/" + recordKey)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)

	var got record.Record
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&got))
	assert.Equal(t, "https://example.org/", got.Message)
}

func TestLookupHTMLRedirect(t *testing.T) {
	router := newFakeRouter()
	g, pub, priv := newTestGateway(t, router)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	body := signedRecordJSON(t, pub, priv, "home", "https://example.org/", 0)
	resp, err := http.Post(srv.URL+"/x", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	var rec record.Record
	require.NoError(t, json.Unmarshal(body, &rec))
	fp, _ := rec.Fingerprint()
	recordKey := record.RecordKey("home", fp)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/"+recordKey, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/html")

	getResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
	assert.Contains(t, getResp.Header.Get("Content-Type"), "text/html")
}

func TestPublishRejectsTamperedSignature(t *testing.T) {
	router := newFakeRouter()
	g, pub, priv := newTestGateway(t, router)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	body := signedRecordJSON(t, pub, priv, "home", "https://example.org/", 0)
	var rec record.Record
	require.NoError(t, json.Unmarshal(body, &rec))
	rec.Message = "https://evil.example/"
	tampered, err := record.Encode(&rec)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/x", "application/json", bytes.NewReader(tampered))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLookupMissingReturns404(t *testing.T) {
	router := newFakeRouter()
	g, _, _ := newTestGateway(t, router)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/" + record.RecordKey("nosuch", record.Fingerprint(make([]byte, 32))))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelRemovesFromRepublishSet(t *testing.T) {
	router := newFakeRouter()
	g, pub, priv := newTestGateway(t, router)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	body := signedRecordJSON(t, pub, priv, "home", "https://example.org/", 0)
	resp, err := http.Post(srv.URL+"/x", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	var rec record.Record
	require.NoError(t, json.Unmarshal(body, &rec))
	fp, _ := rec.Fingerprint()
	recordKey := record.RecordKey("home", fp)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/"+recordKey, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)

	var republishLen int
	g.state.View(func(st *state.State) { republishLen = len(st.Republish) })
	assert.Zero(t, republishLen)

	delResp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, delResp2.StatusCode)
}

func TestVersionSupersession(t *testing.T) {
	router := newFakeRouter()
	g, pub, priv := newTestGateway(t, router)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	post := func(version int64) *http.Response {
		body := signedRecordJSON(t, pub, priv, "home", "https://example.org/", version)
		resp, err := http.Post(srv.URL+"/x", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		return resp
	}

	r0 := post(0)
	require.Equal(t, http.StatusOK, r0.StatusCode)
	r0.Body.Close()

	r1 := post(1)
	require.Equal(t, http.StatusOK, r1.StatusCode)
	r1.Body.Close()

	replay := post(0)
	defer replay.Body.Close()
	assert.Equal(t, http.StatusBadRequest, replay.StatusCode)
}
