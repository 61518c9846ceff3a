package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/antoniostano/audiohook-bridge/internal/audiohook"
	"github.com/antoniostano/audiohook-bridge/internal/auth"
	"github.com/antoniostano/audiohook-bridge/internal/dialogue"
	"github.com/antoniostano/audiohook-bridge/internal/observability"
	"github.com/antoniostano/audiohook-bridge/internal/session"
)

const testAPIKey = "key-123"

type noTokens struct{}

func (noTokens) GetToken(context.Context) (string, error) { return "tok", nil }
func (noTokens) QuotaProject(context.Context) string      { return "" }

func newTestServer(t *testing.T) (*httptest.Server, *prometheus.Registry) {
	t.Helper()
	srv, reg := newAPI(t)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, reg
}

func newAPI(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test_httpapi", reg)
	gate, err := auth.NewAuthenticator(testAPIKey, "")
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	srv := New(context.Background(), gate, audiohook.Deps{
		Dialer:  dialogue.NewDialer(dialogue.DialerConfig{BaseURL: "ws://127.0.0.1:1/unused", Tokens: noTokens{}}),
		Calls:   session.NewManager(time.Minute),
		Metrics: metrics,
	})
	return srv, reg
}

func TestHealthBypassesAuth(t *testing.T) {
	ts, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK || string(body) != "OK\n" {
		t.Fatalf("health = %d %q, want 200 %q", res.StatusCode, body, "OK\n")
	}
}

func getMetrics(t *testing.T, url string, header http.Header) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url+"/metrics", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	return res.StatusCode, string(body)
}

func TestMetricsRequireAuthOnPublicListener(t *testing.T) {
	ts, _ := newTestServer(t)

	status, body := getMetrics(t, ts.URL, nil)
	if status != http.StatusUnauthorized || body != "Unauthorized\n" {
		t.Fatalf("anonymous metrics = %d %q, want 401 %q", status, body, "Unauthorized\n")
	}

	header := http.Header{}
	header.Set(auth.APIKeyHeader, testAPIKey)
	status, body = getMetrics(t, ts.URL, header)
	if status != http.StatusOK {
		t.Fatalf("authenticated metrics status = %d, want 200", status)
	}
	if !strings.Contains(body, "test_httpapi_active_calls") {
		t.Fatalf("metrics output missing active_calls gauge")
	}
}

func TestMetricsRouterServesWithoutAuth(t *testing.T) {
	srv, _ := newAPI(t)
	ts := httptest.NewServer(srv.MetricsRouter())
	defer ts.Close()

	status, body := getMetrics(t, ts.URL, nil)
	if status != http.StatusOK {
		t.Fatalf("internal metrics status = %d, want 200", status)
	}
	if !strings.Contains(body, "test_httpapi_active_calls") {
		t.Fatalf("metrics output missing active_calls gauge")
	}

	res, err := http.Get(ts.URL + "/api/v1/audiohook/ws")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("internal listener upgrade path = %d, want 404", res.StatusCode)
	}
}

func TestUpgradeRequiresAPIKey(t *testing.T) {
	ts, reg := newTestServer(t)

	res, err := http.Get(ts.URL + "/api/v1/audiohook/ws")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusUnauthorized || string(body) != "Unauthorized\n" {
		t.Fatalf("unauthenticated = %d %q, want 401 %q", res.StatusCode, body, "Unauthorized\n")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "test_httpapi_auth_rejections_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("auth rejection was not counted")
	}
}

func TestAuthenticatedUpgradeStartsCall(t *testing.T) {
	ts, _ := newTestServer(t)

	header := http.Header{}
	header.Set(auth.APIKeyHeader, testAPIKey)
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/audiohook/ws", header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ws.Close()

	open := `{"version":"2","type":"open","id":"s1","seq":1,"serverseq":0,"position":"PT0S",` +
		`"parameters":{"organizationId":"o","conversationId":"c","media":[{"type":"audio","format":"PCMU","channels":["external"],"rate":8000}],"inputVariables":{}}}`
	if err := ws.WriteMessage(websocket.TextMessage, []byte(open)); err != nil {
		t.Fatalf("write open: %v", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	var reply struct {
		Type       string `json:"type"`
		Seq        int64  `json:"seq"`
		Parameters struct {
			Reason string `json:"reason"`
			Info   string `json:"info"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Type != "disconnect" || reply.Seq != 1 || reply.Parameters.Reason != "error" {
		t.Fatalf("unexpected reply: %s", data)
	}
	if reply.Parameters.Info != audiohook.InfoMissingTarget {
		t.Fatalf("info = %q, want %q", reply.Parameters.Info, audiohook.InfoMissingTarget)
	}
}
