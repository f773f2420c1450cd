package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/valve-mixer/internal/status"
	"github.com/sweeney/valve-mixer/internal/timing"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Port:        "/dev/ttyACM0",
		Baud:        115200,
		PollMs:      1,
		TickUs:      1000,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func getBody(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func runScheduler(t *testing.T, tr *status.Tracker, volumes ...uint32) *timing.Scheduler {
	t.Helper()
	sched := timing.NewScheduler(timing.Canonical7(), 4000)
	set, _ := sched.Channels().WithVolumes(volumes)
	if !sched.ApplyChannels(set) {
		t.Fatalf("ApplyChannels(%v) failed", volumes)
	}
	sched.Advance(0)
	tr.Update(sched)
	return sched
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	runScheduler(t, tr, 1, 1, 1, 1, 0, 0, 0)
	tr.RecordCommand(status.CommandRecord{Frame: "R1,1,1,1,0,0,0", Kind: "RUN", OK: true})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if !sj.Status.Running {
		t.Error("expected Running=true")
	}
	if sj.Status.Current != "A" {
		t.Errorf("Current: got %q, want A", sj.Status.Current)
	}
	if len(sj.Status.Channels) != 7 {
		t.Fatalf("Channels: got %d, want 7", len(sj.Status.Channels))
	}
	if sj.Status.Channels[0].Duration != 1000 {
		t.Errorf("A duration: got %d, want 1000", sj.Status.Channels[0].Duration)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.OK != 1 {
		t.Errorf("Counts.OK: got %d, want 1", sj.Status.Counts.OK)
	}
	if sj.Status.Config.Port != "/dev/ttyACM0" {
		t.Errorf("Config.Port: got %q", sj.Status.Config.Port)
	}
}

func TestJSONBeforeFirstUpdate(t *testing.T) {
	ts, _ := newTestServer(t)
	sj := getJSON(t, ts.URL)

	if sj.Status.Running {
		t.Error("expected Running=false")
	}
	if sj.Status.Current != "" {
		t.Errorf("Current: got %q, want empty", sj.Status.Current)
	}
	if sj.Status.LastCommand != nil {
		t.Error("expected no last command")
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	sj := getJSON(t, ts.URL)
	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	runScheduler(t, tr, 1, 1, 1, 1, 0, 0, 0)
	tr.RecordCommand(status.CommandRecord{Frame: "P0", Kind: "PERIOD", Error: "invalid period"})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	for _, want := range []string{
		"RUNNING",
		`<tr class="active"><td>A</td>`,
		"a (AD:0x08)",
		"25.0%",
		"P0 &rarr; error (invalid period)",
		"/dev/ttyACM0 @ 115200",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLStopped(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Update(timing.NewScheduler(timing.Canonical7(), 4000))

	page := getBody(t, ts.URL+"/index.html")
	if !strings.Contains(page, "STOPPED") {
		t.Error("page should show STOPPED")
	}
	if !strings.Contains(page, `<tr class="idle"><td>G</td>`) {
		t.Error("idle channels should be marked")
	}
}

func TestHTMLBrokerDisabled(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{})
	ts := httptest.NewServer(New(":0", tr).Handler())
	defer ts.Close()

	page := getBody(t, ts.URL)
	if !strings.Contains(page, "<td>disabled</td>") {
		t.Error("empty broker should render as disabled")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestReadOnlyMethods(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/", "/index.json"} {
		resp, err := http.Post(ts.URL+path, "text/plain", strings.NewReader("S"))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: got %d, want 405", path, resp.StatusCode)
		}
		if allow := resp.Header.Get("Allow"); allow != "GET, HEAD" {
			t.Errorf("POST %s Allow: got %q", path, allow)
		}
	}
}

func TestJSONNotCached(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	resp.Body.Close()
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control: got %q, want no-store", cc)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	if getJSON(t, ts.URL).Status.Running {
		t.Error("expected Running=false initially")
	}

	sched := runScheduler(t, tr, 0, 0, 0, 0, 1, 1, 0)
	tr.SetMQTTConnected(true)

	sj := getJSON(t, ts.URL)
	if !sj.Status.Running || sj.Status.Current != "E" {
		t.Errorf("after run: running=%v current=%q", sj.Status.Running, sj.Status.Current)
	}

	sched.ApplyChannels(sched.Channels().Cleared())
	tr.Update(sched)

	sj = getJSON(t, ts.URL)
	if sj.Status.Running {
		t.Error("expected Running=false after stop")
	}
}

func TestServeAndShutdown(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{})
	srv := New(":0", tr)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	page := getBody(t, "http://"+ln.Addr().String()+"/")
	if !strings.Contains(page, "Valve Mixer") {
		t.Error("unexpected page body")
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-done; err != http.ErrServerClosed {
		t.Errorf("Serve: got %v, want ErrServerClosed", err)
	}
}
