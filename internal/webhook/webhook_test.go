package webhook

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func deliverTo(t *testing.T, handler http.HandlerFunc, target Target) Outcome {
	t.Helper()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	if target.Endpoint == "" {
		target.Endpoint = srv.URL
	}
	client := NewClient(5*time.Second, "")
	return client.Deliver(context.Background(), target, []byte(`{"eventType":"concurso.findings"}`), 1)
}

func TestDeliverSuccess(t *testing.T) {
	var gotBody string
	var gotHeaders http.Header
	out := deliverTo(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"received":true}`))
	}, Target{SubscriptionID: "sub-1", AuthType: "bearer", AuthToken: "tok123"})

	if !out.Success || out.Retriable {
		t.Fatalf("outcome = %+v", out)
	}
	if out.StatusCode != http.StatusOK {
		t.Errorf("status = %d", out.StatusCode)
	}
	if out.ResponseBody != `{"received":true}` {
		t.Errorf("responseBody = %q", out.ResponseBody)
	}
	if gotBody != `{"eventType":"concurso.findings"}` {
		t.Errorf("posted body = %q", gotBody)
	}
	if got := gotHeaders.Get("Authorization"); got != "Bearer tok123" {
		t.Errorf("authorization = %q", got)
	}
	if got := gotHeaders.Get("Content-Type"); got != "application/json" {
		t.Errorf("content-type = %q", got)
	}
	if got := gotHeaders.Get("X-Webhook-Attempt"); got != "1" {
		t.Errorf("attempt header = %q", got)
	}
	if got := gotHeaders.Get("X-Webhook-Subscription-Id"); got != "sub-1" {
		t.Errorf("subscription header = %q", got)
	}
	if got := gotHeaders.Get("User-Agent"); got != "gazeta-webhook/1.0" {
		t.Errorf("user-agent = %q", got)
	}
}

func TestDeliverClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		success   bool
		retriable bool
	}{
		{"created", http.StatusCreated, true, false},
		{"server_error", http.StatusInternalServerError, false, true},
		{"bad_gateway", http.StatusBadGateway, false, true},
		{"rate_limited", http.StatusTooManyRequests, false, true},
		{"bad_request", http.StatusBadRequest, false, false},
		{"not_found", http.StatusNotFound, false, false},
		{"unauthorized", http.StatusUnauthorized, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := deliverTo(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}, Target{})
			if out.Success != tc.success || out.Retriable != tc.retriable {
				t.Errorf("status %d: outcome = %+v", tc.status, out)
			}
			if !tc.success && out.ErrorMessage == "" {
				t.Error("failure outcome missing error message")
			}
		})
	}
}

func TestDeliverTransportErrorIsRetriable(t *testing.T) {
	client := NewClient(time.Second, "")
	out := client.Deliver(context.Background(), Target{Endpoint: "http://127.0.0.1:1"}, []byte("{}"), 1)
	if out.Success || !out.Retriable {
		t.Errorf("outcome = %+v", out)
	}
	if out.ErrorMessage == "" {
		t.Error("missing error message")
	}
}

func TestDeliverTruncatesResponseBody(t *testing.T) {
	long := strings.Repeat("x", maxResponseBody+500)
	out := deliverTo(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(long))
	}, Target{})

	if len(out.ResponseBody) != maxResponseBody {
		t.Errorf("responseBody length = %d, want %d", len(out.ResponseBody), maxResponseBody)
	}
}

func TestApplyAuthModes(t *testing.T) {
	cases := []struct {
		name      string
		authType  string
		authToken string
		header    string
		want      string
	}{
		{"bearer", "bearer", "abc", "Authorization", "Bearer abc"},
		{"basic", "basic", "user:pass", "Authorization", "Basic " + base64.StdEncoding.EncodeToString([]byte("user:pass"))},
		{"custom", "custom", "X-Api-Key: secret", "X-Api-Key", "secret"},
		{"none", "", "", "Authorization", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			deliverTo(t, func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get(tc.header)
			}, Target{AuthType: tc.authType, AuthToken: tc.authToken})
			if got != tc.want {
				t.Errorf("%s header = %q, want %q", tc.header, got, tc.want)
			}
		})
	}
}
