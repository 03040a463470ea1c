package backend

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"neural_consensus/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/", Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestGenerateSendsWirePayload(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"consensus":"Yes","expert_responses":{"A":"ok"},"hallucination_risk":"Low"}`))
	})

	top := 3
	res, err := c.Generate(context.Background(), domain.RunRequest{
		Query:          "Does X hold?",
		OutputFormat:   "Standard",
		Temperature:    0.7,
		TargetAudience: "General",
		ExpertWeights:  map[string]float64{"logical": 1},
		ExpertConfigs:  map[string]domain.AgentConfig{"logical": {TopK: &top}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Consensus != "Yes" || res.ExpertResponses["A"] != "ok" || res.HallucinationRisk != "Low" {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, key := range []string{"query", "context", "output_format", "temperature", "criteria", "tone", "length", "target_audience", "expert_weights", "expert_configs"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("payload missing %q: %v", key, got)
		}
	}
	cfg := got["expert_configs"].(map[string]any)["logical"].(map[string]any)
	if cfg["top_k"] != float64(3) {
		t.Fatalf("top_k=%v", cfg["top_k"])
	}
	if _, ok := cfg["temperature"]; ok {
		t.Fatalf("absent override fields must be omitted: %v", cfg)
	}
}

func TestGenerateToleratesMissingFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	res, err := c.Generate(context.Background(), domain.RunRequest{Query: "q"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.ExpertResponses == nil {
		t.Fatalf("expert responses should default to an empty map")
	}
	if res.ConfidenceScore != nil {
		t.Fatalf("absent confidence should stay nil")
	}
}

func TestGenerateErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		transport bool
		decode    bool
	}{
		{
			name: "non-2xx is transport",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusBadGateway)
			},
			transport: true,
		},
		{
			name: "html is decode",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("<html>oops</html>"))
			},
			decode: true,
		},
		{
			name: "wrong shape is decode",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"consensus": 12}`))
			},
			decode: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.handler)
			_, err := c.Generate(context.Background(), domain.RunRequest{Query: "q"})
			if err == nil {
				t.Fatalf("expected error")
			}
			if IsTransport(err) != tc.transport || IsDecode(err) != tc.decode {
				t.Fatalf("err=%v transport=%t decode=%t", err, IsTransport(err), IsDecode(err))
			}
		})
	}
}

func TestGenerateUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: base, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.Generate(context.Background(), domain.RunRequest{Query: "q"})
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"status":"operational","service":"Neural Consensus Engine"}`))
	})
	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != "operational" {
		t.Fatalf("status=%q", status)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected empty url error")
	}
	if _, err := New(Config{BaseURL: "not a url"}); err == nil {
		t.Fatalf("expected invalid url error")
	}
}
