package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/rfidhub/internal/api"
	"github.com/nerrad567/rfidhub/internal/driver"
	"github.com/nerrad567/rfidhub/internal/infrastructure/config"
	"github.com/nerrad567/rfidhub/internal/infrastructure/logging"
	"github.com/nerrad567/rfidhub/internal/reader"
	"github.com/nerrad567/rfidhub/internal/tagcodec"
)

// startHub runs a real API server over the simulator and returns its base URL.
func startHub(t *testing.T) (string, *driver.Simulator) {
	t.Helper()

	sim := driver.NewSimulator()
	addr := driver.Address{Bus: 1, Port: 1}
	sim.AddReader(addr)
	payload, err := tagcodec.Default().EncodePayload("hello")
	if err != nil {
		t.Fatal(err)
	}
	sim.PlaceTag(addr, "E001", payload)

	registry := reader.NewRegistry(reader.RegistryConfig{
		Driver:        sim,
		Store:         reader.NewINIStore(filepath.Join(t.TempDir(), "readers.ini")),
		DeviceTimeout: time.Second,
	})

	log := logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
	srv, err := api.New(api.Deps{
		Config:   config.APIConfig{Host: "127.0.0.1"},
		WS:       config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:   log,
		Registry: registry,
		Ports:    sim,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("api.New() error: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() {
		srv.Close()
		registry.Close(context.Background())
	})
	return fmt.Sprintf("http://%s/api/v1", srv.Addr()), sim
}

func newTestConsole(t *testing.T) (*Console, *bytes.Buffer) {
	t.Helper()
	base, _ := startHub(t)
	var out bytes.Buffer
	return NewConsole(newHubClient(base, 5*time.Second), &out), &out
}

// exec runs line and returns what the console printed.
func exec(t *testing.T, c *Console, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	if !c.Exec(context.Background(), line) {
		t.Fatalf("Exec(%q) asked to quit", line)
	}
	return out.String()
}

func TestConsole_ReaderSession(t *testing.T) {
	c, out := newTestConsole(t)

	if got := exec(t, c, out, "add dock 1 1"); !strings.Contains(got, `"response": 0`) {
		t.Fatalf("add = %q", got)
	}
	if got := exec(t, c, out, "ls"); !strings.Contains(got, `"dock"`) || !strings.Contains(got, `"state": false`) {
		t.Errorf("list = %q", got)
	}

	got := exec(t, c, out, "inventory dock")
	if !strings.HasPrefix(got, "FAILED (HTTP 400)") || !strings.Contains(got, `"error_code": 12`) {
		t.Errorf("inventory while disconnected = %q", got)
	}

	exec(t, c, out, "start dock")
	if got := exec(t, c, out, "inv dock"); !strings.Contains(got, "E001") {
		t.Errorf("inventory = %q", got)
	}
	if got := exec(t, c, out, "read dock E001"); !strings.Contains(got, `"E001": "hello"`) {
		t.Errorf("read = %q", got)
	}
	if got := exec(t, c, out, "write dock E001=world"); strings.Contains(got, "FAILED") {
		t.Errorf("write = %q", got)
	}
	if got := exec(t, c, out, "read dock"); !strings.Contains(got, `"E001": "world"`) {
		t.Errorf("read all = %q", got)
	}
	if got := exec(t, c, out, "clear dock E001"); strings.Contains(got, "FAILED") {
		t.Errorf("clear = %q", got)
	}

	exec(t, c, out, "stop dock")
	if got := exec(t, c, out, "update dock reader_id=gate bus_addr=2"); !strings.Contains(got, `"response": 0`) {
		t.Errorf("update = %q", got)
	}
	if got := exec(t, c, out, "get gate"); !strings.Contains(got, `"bus_addr": 2`) {
		t.Errorf("get = %q", got)
	}
	if got := exec(t, c, out, "get dock"); !strings.Contains(got, "FAILED (HTTP 404)") {
		t.Errorf("get renamed reader = %q", got)
	}
	if got := exec(t, c, out, "delete --all"); strings.Contains(got, "FAILED") {
		t.Errorf("delete all = %q", got)
	}
	if got := exec(t, c, out, "delete --all"); !strings.Contains(got, `"error_code": 14`) {
		t.Errorf("delete all on empty list = %q", got)
	}
}

func TestConsole_Usage(t *testing.T) {
	c, out := newTestConsole(t)

	tests := []struct {
		line string
		want string
	}{
		{"get", "Usage: get <reader>"},
		{"add dock 1", "Usage: add <reader>"},
		{"write dock E001", "Usage: write <reader>"},
		{"update dock state", "Usage: update <reader>"},
		{"frobnicate", "Unknown command: frobnicate"},
		{"help", "inventory <reader>"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := exec(t, c, out, tt.line); !strings.Contains(got, tt.want) {
				t.Errorf("Exec(%q) printed %q, want %q", tt.line, got, tt.want)
			}
		})
	}

	if got := exec(t, c, out, "   "); got != "" {
		t.Errorf("blank line printed %q", got)
	}
	if c.Exec(context.Background(), "quit") {
		t.Error("quit should end the console")
	}
}

func TestConsole_PortsAndHealth(t *testing.T) {
	c, out := newTestConsole(t)

	if got := exec(t, c, out, "ports"); !strings.Contains(got, "sim1") {
		t.Errorf("ports = %q", got)
	}
	if got := exec(t, c, out, "health"); !strings.Contains(got, `"version": "test"`) {
		t.Errorf("health = %q", got)
	}
	if got := exec(t, c, out, "audit"); !strings.Contains(got, "FAILED (HTTP 503)") {
		t.Errorf("audit without repository = %q", got)
	}
}

func TestConsole_Unreachable(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(newHubClient("http://127.0.0.1:1/api/v1", time.Second), &out)
	c.Exec(context.Background(), "list")
	if !strings.HasPrefix(out.String(), "Error: ") {
		t.Errorf("unreachable hub printed %q", out.String())
	}
}

func TestFieldValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"3", 3},
		{"on", true},
		{"OFF", false},
		{"true", true},
		{"1.5", "1.5"},
		{"dock", "dock"},
	}
	for _, tt := range tests {
		if got := fieldValue(tt.in); got != tt.want {
			t.Errorf("fieldValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestRun_OneShot(t *testing.T) {
	base, _ := startHub(t)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-addr", base, "list"}, &out); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if !strings.Contains(out.String(), `"response": {}`) {
		t.Errorf("list on empty hub = %q", out.String())
	}

	if err := run(context.Background(), []string{"-bogus"}, &out); err == nil {
		t.Error("unknown flag should fail")
	}
}
