package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"wolf-fhs280/config"
	"wolf-fhs280/internal/collector"
	"wolf-fhs280/internal/heatpump"
	"wolf-fhs280/internal/metrics"
	"wolf-fhs280/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTransport struct {
	mu       sync.Mutex
	holding  map[uint16]uint16
	input    map[uint16]uint16
	writeErr error
}

func (s *stubTransport) ReadRegisters(ctx context.Context, table heatpump.Table, address, quantity uint16) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.holding
	if table == heatpump.InputRegister {
		src = s.input
	}
	out := make([]uint16, quantity)
	for i := range out {
		out[i] = src[address+uint16(i)]
	}
	return out, nil
}

func (s *stubTransport) WriteRegisters(ctx context.Context, address uint16, values []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}
	for i, v := range values {
		s.holding[address+uint16(i)] = v
	}
	return nil
}

type testEnv struct {
	transport *stubTransport
	collector *collector.Collector
	handler   http.Handler
}

func newTestEnv(t *testing.T, poll bool) *testEnv {
	t.Helper()

	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tr := &stubTransport{
		holding: map[uint16]uint16{heatpump.RegSetpoint: 50, heatpump.RegTMax: 55},
		input:   map[uint16]uint16{heatpump.RegT1: 455},
	}
	m := metrics.New("test")
	c := collector.NewCollector(collector.CollectorConfig{
		Poller:   heatpump.NewPoller(heatpump.FHS280(heatpump.DefaultSetpointMax), tr),
		Database: db,
		Metrics:  m,
		Interval: time.Minute,
		Enabled:  true,
	})
	if poll {
		_, err := c.CollectOnce(context.Background())
		require.NoError(t, err)
	}

	cfg := &config.Config{
		Device: config.DeviceConfig{
			Name: "Wolf FHS280", Host: "10.0.0.5", Port: 502, SlaveID: 3,
			Timeout: 5 * time.Second, SetpointMax: 90,
		},
		Collector: config.CollectorConfig{Interval: 30 * time.Second},
	}

	s := NewServer(ServerConfig{Port: 0, Collector: c, Database: db, Metrics: m, Config: cfg})
	return &testEnv{transport: tr, collector: c, handler: s.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["device_available"])
}

func TestStatusBeforeFirstPoll(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, "unavailable", decode(t, rec)["status"])
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	values := decode(t, rec)["values"].(map[string]interface{})
	assert.Equal(t, 45.5, values["t1"])
	assert.Equal(t, "00:00", values["start_time"])
}

func TestEntities(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/api/v1/entities", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entities []heatpump.Entity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entities))
	assert.Len(t, entities, env.collector.Map().Len()+1)
}

func TestField(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/api/v1/fields/t_setpoint", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 50.0, body["value"])
	assert.Equal(t, "t_max", body["max_from"])

	rec = env.do(t, http.MethodGet, "/api/v1/fields/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/fields", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteField(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		body   string
		status int
	}{
		{"number", "t_setpoint", `{"value": 52}`, http.StatusOK},
		{"above t_max", "t_setpoint", `{"value": 56}`, http.StatusBadRequest},
		{"read-only", "t_max", `{"value": 50}`, http.StatusBadRequest},
		{"unknown", "nope", `{"value": 1}`, http.StatusNotFound},
		{"switch", "boost", `{"value": true}`, http.StatusOK},
		{"select", "operating_mode", `{"value": "Heat pump only"}`, http.StatusOK},
		{"bad option", "operating_mode", `{"value": "turbo"}`, http.StatusBadRequest},
		{"time", "start_time", `{"value": "06:45"}`, http.StatusOK},
		{"missing value", "boost", `{}`, http.StatusBadRequest},
		{"object value", "boost", `{"value": {"a": 1}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true)
			rec := env.do(t, http.MethodPut, "/api/v1/fields/"+tt.field, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestWriteFieldUpdatesDevice(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPut, "/api/v1/fields/start_time", `{"value": "06:45"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "06:45", decode(t, rec)["value"])
	assert.Equal(t, uint16(6), env.transport.holding[heatpump.RegStartTime])
	assert.Equal(t, uint16(45), env.transport.holding[heatpump.RegStartTime+1])

	rec = env.do(t, http.MethodGet, "/api/v1/writes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var writes []storage.WriteRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &writes))
	require.Len(t, writes, 1)
	assert.Equal(t, collector.SourceAPI, writes[0].Source)
}

func TestWriteTransportError(t *testing.T) {
	env := newTestEnv(t, true)
	env.transport.writeErr = errors.New("broken pipe")

	rec := env.do(t, http.MethodPut, "/api/v1/fields/boost", `{"value": "on"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSyncClock(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/v1/clock/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(heatpump.RegDeviceClock), decode(t, rec)["address"])
}

func TestPoll(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/api/v1/poll", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["updated"])
}

func TestReadings(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/api/v1/readings?field=t1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var readings []storage.FieldReading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &readings))
	require.Len(t, readings, 1)
	assert.Equal(t, 45.5, readings[0].Number)

	rec = env.do(t, http.MethodGet, "/api/v1/readings", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/readings?field=nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/readings?field=t1&from=bad&to=bad", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/readings/latest?field=t1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/stats/daily?field=t1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/stats/daily?date=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeviceConfig(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/api/v1/config/device", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "10.0.0.5", body["host"])
	assert.Equal(t, 80.0, body["setpoint_max"])

	rec = env.do(t, http.MethodPost, "/api/v1/config/device/test", `{"host": "10.0.0.5", "port": 70000, "slave_id": 3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeviceTestFractionalTimeout(t *testing.T) {
	env := newTestEnv(t, false)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	body := fmt.Sprintf(`{"host": "127.0.0.1", "port": %d, "slave_id": 3, "timeout_seconds": 0.5}`, port)
	rec := env.do(t, http.MethodPost, "/api/v1/config/device/test", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])

	body = fmt.Sprintf(`{"host": "127.0.0.1", "port": %d, "slave_id": 3, "timeout_seconds": 0.2}`, port)
	rec = env.do(t, http.MethodPost, "/api/v1/config/device/test", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `wolf_fhs280_field_value{device="test",field="t1",unit="°C"} 45.5`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&heatpump.FieldError{Err: heatpump.ErrUnknownField}, http.StatusNotFound},
		{&heatpump.FieldError{Err: heatpump.ErrReadOnly}, http.StatusBadRequest},
		{&heatpump.FieldError{Err: heatpump.ErrOutOfRange}, http.StatusBadRequest},
		{&heatpump.FieldError{Err: heatpump.ErrTransport}, http.StatusBadGateway},
		{fmt.Errorf("poll: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}

func TestValueText(t *testing.T) {
	s, err := valueText(45.5)
	require.NoError(t, err)
	assert.Equal(t, "45.5", s)

	s, err = valueText(false)
	require.NoError(t, err)
	assert.Equal(t, "off", s)

	_, err = valueText([]interface{}{1})
	assert.Error(t, err)
}
