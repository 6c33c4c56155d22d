package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storeflow/internal/adapter/filesystem"
	"github.com/rl1809/storeflow/internal/adapter/spreadsheet"
	"github.com/rl1809/storeflow/internal/core/service"
	"github.com/rl1809/storeflow/internal/port"
)

const testEmail = "staff@cavitak.com"

type memSlots struct {
	mu     sync.Mutex
	values map[string]string
	writes map[string]int64
}

func (m *memSlots) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memSlots) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	if m.writes == nil {
		m.writes = make(map[string]int64)
	}
	m.writes[key]++
	return nil
}

func (m *memSlots) Revision(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[key], nil
}

func (m *memSlots) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

type stubEditor struct {
	out []byte
	err error
}

func (s *stubEditor) EditImage(ctx context.Context, image []byte, mimeType, instruction string) ([]byte, error) {
	return s.out, s.err
}

type fixture struct {
	router    *mux.Router
	inventory *service.Inventory
	sync      *service.SyncService
	auth      *service.AuthService
	metrics   *Metrics
	root      string
	token     string
}

func newFixture(t *testing.T, editor port.ImageEditor) *fixture {
	t.Helper()

	store := service.NewStateStore(&memSlots{values: map[string]string{}})
	inv := service.NewInventory(store, service.InventoryConfig{})
	root := t.TempDir()
	syncSvc := service.NewSyncService(inv, spreadsheet.NewExcelCodec(), filesystem.NewLocalFileAccess(root, true), nil)
	auth := service.NewAuthService(store, service.AuthConfig{
		EmailDomain:    "@cavitak.com",
		Code:           "123456",
		ResendCooldown: 30 * time.Second,
		SessionSecret:  "handler-test",
		SessionTTL:     time.Hour,
	}, nil)
	metrics := NewMetrics(prometheus.NewRegistry())

	h := NewHTTPHandler(inv, syncSvc, auth, service.NewImageStudio(editor), metrics)
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	return &fixture{router: router, inventory: inv, sync: syncSvc, auth: auth, metrics: metrics, root: root}
}

// login signs in testEmail and keeps the token for later requests.
func (f *fixture) login(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/auth/code", map[string]string{"email": testEmail})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/auth/verify", map[string]string{"email": testEmail, "code": "123456"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		Token string `json:"token"`
	}
	decodeData(t, rec, &data)
	require.NotEmpty(t, data.Token)
	f.token = data.Token
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	return f.doRaw(t, method, path, buf.Bytes(), "application/json")
}

func (f *fixture) doRaw(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.NoError(t, json.Unmarshal(env.Data, dst), string(env.Data))
}
