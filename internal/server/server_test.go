package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/telcobridge/telcobridge/internal/broker"
	"github.com/telcobridge/telcobridge/internal/keys"
	"github.com/telcobridge/telcobridge/internal/token"
)

type fakeIssuer struct {
	req broker.Request
	res *broker.Result
	err error
}

func (f *fakeIssuer) Issue(ctx context.Context, req broker.Request) (*broker.Result, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func newTestServer(t *testing.T, issuer Issuer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(Config{Issuer: issuer}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postToken(t *testing.T, baseURL, mcc, sn, authCode string) *http.Response {
	t.Helper()

	form := url.Values{}
	if authCode != "" {
		form.Set("auth_code", authCode)
	}

	endpoint := baseURL + "/api/demo/token?mcc=" + url.QueryEscape(mcc) + "&sn=" + url.QueryEscape(sn)
	resp, err := http.Post(endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestTokenEndpoint(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := &fakeIssuer{
		res: &broker.Result{
			Token: &token.Token{
				AccessToken: "broker-token",
				GrantType:   token.GrantTypeClientCredentials,
				TokenType:   "Bearer",
				IssuedAt:    now,
				ExpiresAt:   now.Add(5 * time.Minute),
			},
			Source: broker.SourceProvider,
		},
	}
	srv := newTestServer(t, issuer)

	resp := postToken(t, srv.URL, "972", "050123", "code-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var tok token.Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.AccessToken != "broker-token" {
		t.Errorf("unexpected access token %q", tok.AccessToken)
	}
	if tok.GrantType != token.GrantTypeClientCredentials || tok.TokenType != "Bearer" {
		t.Errorf("unexpected token shape: %+v", tok)
	}

	if issuer.req.MCC != "972" || issuer.req.SN != "050123" || issuer.req.AuthCode != "code-1" {
		t.Errorf("request was not passed through: %+v", issuer.req)
	}
}

func TestTokenEndpoint_Validation(t *testing.T) {
	cases := []struct {
		name     string
		mcc      string
		sn       string
		authCode string
	}{
		{"missing mcc", "", "050", "code"},
		{"mcc too long", "9721", "050", "code"},
		{"mcc not digits", "97a", "050", "code"},
		{"missing sn", "972", "", "code"},
		{"sn not digits", "972", "05x", "code"},
		{"routing key too long", "972", "1234567890123", "code"},
		{"missing auth code", "972", "050", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			issuer := &fakeIssuer{err: errors.New("must not be called")}
			srv := newTestServer(t, issuer)

			resp := postToken(t, srv.URL, tc.mcc, tc.sn, tc.authCode)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
			if issuer.req.MCC != "" {
				t.Error("issuer was called for an invalid request")
			}
		})
	}
}

func TestTokenEndpoint_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"no route", broker.ErrNoRoute, http.StatusBadRequest},
		{"unauthorized", broker.ErrUnauthorized, http.StatusUnauthorized},
		{"provider unavailable", broker.ErrProviderUnavailable, http.StatusServiceUnavailable},
		{"internal", errors.New("cache exploded"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeIssuer{err: tc.err})

			resp := postToken(t, srv.URL, "972", "050", "code")
			if resp.StatusCode != tc.status {
				t.Errorf("expected %d, got %d", tc.status, resp.StatusCode)
			}

			var body errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			// Internal detail must never reach the client
			if tc.status == http.StatusInternalServerError && strings.Contains(body.Error, "cache") {
				t.Errorf("internal error leaked detail: %q", body.Error)
			}
		})
	}
}

func TestJWKSEndpoint(t *testing.T) {
	t.Run("without material", func(t *testing.T) {
		srv := newTestServer(t, &fakeIssuer{})

		resp, err := http.Get(srv.URL + "/.well-known/jwks.json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var doc struct {
			Keys []any `json:"keys"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(doc.Keys) != 0 {
			t.Errorf("expected empty key set, got %d keys", len(doc.Keys))
		}
	})

	t.Run("symmetric material publishes no keys", func(t *testing.T) {
		material, err := keys.Load(keys.Config{Algorithm: "HS256", Secret: "s"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		srv := httptest.NewServer(New(Config{Issuer: &fakeIssuer{}, Material: material}).Handler())
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/.well-known/jwks.json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer resp.Body.Close()

		var doc struct {
			Keys []any `json:"keys"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(doc.Keys) != 0 {
			t.Errorf("symmetric secrets must not be published, got %d keys", len(doc.Keys))
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeIssuer{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeIssuer{})

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
