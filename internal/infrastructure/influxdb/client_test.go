package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/rfidhub/internal/infrastructure/config"
	"github.com/nerrad567/rfidhub/internal/infrastructure/influxdb"
)

// fakeInflux answers the ping and write endpoints of the v2 API and keeps
// every line-protocol body it receives.
type fakeInflux struct {
	mu    sync.Mutex
	lines []string
	srv   *httptest.Server
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping", "/health":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeInflux) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.srv.URL,
		Token:         "test-token",
		Org:           "rfidhub",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: false})
	assert.ErrorIs(t, err, influxdb.ErrDisabled)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:1"})
	assert.ErrorIs(t, err, influxdb.ErrConnectionFailed)
}

func TestWriters(t *testing.T) {
	fake := newFakeInflux(t)
	client, err := influxdb.Connect(fake.config())
	require.NoError(t, err)
	require.True(t, client.IsConnected())
	require.NoError(t, client.HealthCheck(context.Background()))

	at := time.Unix(1_760_000_000, 0)
	client.WriteTagOperation("dock-1", "read", 3, 1, at)
	client.WriteReaderState("dock-1", false, "link_lost", at)
	client.WriteDeviceError("dock-1", "inventory", -1220, at)
	require.NoError(t, client.Close())

	require.Eventually(t, func() bool { return len(fake.received()) == 3 }, 5*time.Second, 20*time.Millisecond)
	lines := strings.Join(fake.received(), "\n")
	assert.Contains(t, lines, "rfid_tag_operation,operation=read,reader_id=dock-1 failed=1i,succeeded=3i 1760000000000000000")
	assert.Contains(t, lines, "rfid_reader_state,reader_id=dock-1,reason=link_lost connected=false 1760000000000000000")
	assert.Contains(t, lines, "rfid_device_error,operation=inventory,reader_id=dock-1 code=-1220i 1760000000000000000")
}

func TestClosedClientDropsPoints(t *testing.T) {
	fake := newFakeInflux(t)
	client, err := influxdb.Connect(fake.config())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	client.WriteTagOperation("dock-1", "write", 1, 0, time.Now())
	client.Flush()

	assert.False(t, client.IsConnected())
	assert.True(t, errors.Is(client.HealthCheck(context.Background()), influxdb.ErrNotConnected))
	assert.Empty(t, fake.received())
}
