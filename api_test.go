package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGatewayURLDiscovery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gateway" {
			t.Errorf("path = %q, want /gateway", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url":"wss://gateway.example"}`))
	}))
	defer srv.Close()

	api := NewAPIClient(srv.URL, "tok-123")
	url, err := api.GatewayURL(context.Background())
	if err != nil {
		t.Fatalf("gateway url: %v", err)
	}
	if url != "wss://gateway.example" {
		t.Errorf("url = %q", url)
	}
}

func TestCurrentUserProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/@me" {
			t.Errorf("path = %q, want /users/@me", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"42","username":"me","discriminator":"0"}`))
	}))
	defer srv.Close()

	api := NewAPIClient(srv.URL, "tok-123")
	u, err := api.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if u.ID != "42" || u.Username != "me" {
		t.Errorf("user = %+v", u)
	}
}

func TestAPIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"401: Unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	api := NewAPIClient(srv.URL, "bad-token")
	if _, err := api.CurrentUser(context.Background()); err == nil {
		t.Fatal("expected error for 401 response")
	} else if !strings.Contains(err.Error(), "401") {
		t.Errorf("error should carry the status code: %v", err)
	}
}
