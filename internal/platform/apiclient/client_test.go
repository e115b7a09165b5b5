package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"labourpanel/internal/domain/engineer"
	"labourpanel/internal/domain/labour"
	"labourpanel/internal/requestctx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL + "/api"}, StaticToken("tok-123"), srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestListLabourersDecodesEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/labourers" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.Header.Get("X-Request-ID"); got != "req-9" {
			t.Errorf("unexpected request id %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("reads must carry the json content type too, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"data":[
			{"_id":"64ab","name":"Raju","phone":"9000000001","totalPaid":"700.50","payments":[{"_id":"p1","amount":300,"date":"2026-03-01"}]},
			{"id":7,"name":"Meena","phone":"9000000002","totalPaid":0,"payments":[]}
		]}`)
	})

	ctx := requestctx.WithRequestID(context.Background(), "req-9")
	labourers, err := client.ListLabourers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(labourers) != 2 {
		t.Fatalf("expected 2 labourers, got %d", len(labourers))
	}
	if labourers[0].ID != "64ab" || labourers[0].TotalPaid != 700.5 || labourers[0].Payments[0].ID != "p1" {
		t.Fatalf("unexpected first labourer %+v", labourers[0])
	}
	if labourers[1].ID != "7" {
		t.Fatalf("expected numeric id decoded, got %q", labourers[1].ID)
	}
}

func TestNonSuccessEnvelopeMessageVerbatim(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"success":false,"message":"Phone number already registered"}`)
	})

	_, err := client.CreateLabourer(context.Background(), labour.Draft{Name: "Raju"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Message != "Phone number already registered" || te.Status != http.StatusBadRequest {
		t.Fatalf("unexpected error %+v", te)
	}
	if te.UserMessage() != te.Message {
		t.Fatal("user message must be the backend message")
	}
}

func TestSuccessStatusWithFailedEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"error":{"message":"Labourer not found"}}`)
	})
	err := client.DeleteLabourer(context.Background(), "x")
	var te *TransportError
	if !errors.As(err, &te) || te.Message != "Labourer not found" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestBodylessCallsSetContentType(t *testing.T) {
	var got string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Content-Type")
		_, _ = io.WriteString(w, `{"success":true}`)
	})
	if err := client.DeleteLabourer(context.Background(), "4"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got != "application/json" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestMalformedBodyIsTransportError(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		msg    string
	}{
		"html error page":  {http.StatusBadGateway, "<html>bad gateway</html>", "Bad Gateway"},
		"missing success":  {http.StatusOK, `{"data":[]}`, "Unexpected response from server"},
		"wrong data shape": {http.StatusOK, `{"success":true,"data":{"id":1}}`, "Unexpected response from server"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := client.ListLabourers(context.Background())
			var te *TransportError
			if !errors.As(err, &te) {
				t.Fatalf("expected TransportError, got %v", err)
			}
			if te.Message != tc.msg {
				t.Fatalf("expected %q, got %q", tc.msg, te.Message)
			}
		})
	}
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewClient(Config{BaseURL: url, Timeout: time.Second}, StaticToken("t"), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()
	err = client.UpdateLabourer(context.Background(), "1", labour.Draft{Name: "x"})
	var te *TransportError
	if !errors.As(err, &te) || te.Err == nil {
		t.Fatalf("expected wrapped network error, got %v", err)
	}
}

func TestAddPaymentPathAndBody(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost || r.URL.EscapedPath() != "/api/labourers/a%2Fb/payments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.EscapedPath())
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["amount"] != 250.0 || body["date"] != "2026-03-14" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = io.WriteString(w, `{"success":true,"message":"Payment added"}`)
	})

	if err := client.AddPayment(context.Background(), "a/b", labour.NewPayment{Amount: 250, Date: "2026-03-14"}); err != nil {
		t.Fatalf("add payment: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
}

func TestEngineerCalls(t *testing.T) {
	var lastBody string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		lastBody = string(raw)
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/engineers/e1":
			_, _ = io.WriteString(w, `{"success":true,"data":{"_id":"e1","name":"Asha","username":"asha","profileImage":"https://cdn/a.png"}}`)
		case r.Method == http.MethodPut && r.URL.Path == "/api/engineers/e1":
			_, _ = io.WriteString(w, `{"success":true}`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/engineers":
			_, _ = io.WriteString(w, `{"success":true,"data":{"id":"e2"}}`)
		default:
			http.NotFound(w, r)
		}
	})

	rec, err := client.GetEngineer(context.Background(), "e1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.ID != "e1" || rec.ProfileImageURL != "https://cdn/a.png" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if err := client.UpdateEngineer(context.Background(), "e1", engineer.Payload{Name: "Asha", Password: engineer.Unchanged()}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if strings.Contains(lastBody, "password") {
		t.Fatalf("unchanged password sent: %s", lastBody)
	}

	if err := client.CreateEngineer(context.Background(), engineer.Payload{Name: "B", Password: engineer.NewPassword("secret1")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(lastBody, `"password":"secret1"`) {
		t.Fatalf("password missing: %s", lastBody)
	}
}

func TestExpiredTokenIsRejectedLocally(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	token := signedToken(t, jwt.MapClaims{"sub": "admin", "exp": time.Now().Add(-time.Hour).Unix()})
	client, err := NewClient(Config{BaseURL: srv.URL}, StaticToken(token), srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.ListLabourers(context.Background())
	if !errors.Is(err, ErrCredentialExpired) {
		t.Fatalf("expected ErrCredentialExpired, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("expired token must not reach the backend")
	}
}

func TestMissingCredential(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})
	client.creds = StaticToken("  ")
	if err := client.DeleteLabourer(context.Background(), "1"); !errors.Is(err, ErrCredentialMissing) {
		t.Fatalf("expected ErrCredentialMissing, got %v", err)
	}
}

func TestCheckTokenAndSubject(t *testing.T) {
	now := time.Now()
	live := signedToken(t, jwt.MapClaims{"sub": "admin", "exp": now.Add(time.Hour).Unix()})
	if err := CheckToken(live, now); err != nil {
		t.Fatalf("live token rejected: %v", err)
	}
	if Subject(live) != "admin" {
		t.Fatalf("unexpected subject %q", Subject(live))
	}
	if err := CheckToken("opaque-token", now); err != nil {
		t.Fatalf("opaque token rejected: %v", err)
	}
	if Subject("opaque-token") != "" {
		t.Fatal("opaque token has no subject")
	}
	noSub := signedToken(t, jwt.MapClaims{"username": "site_admin"})
	if Subject(noSub) != "site_admin" {
		t.Fatalf("expected username fallback, got %q", Subject(noSub))
	}
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "not a url"}, StaticToken("t"), nil); err == nil {
		t.Fatal("expected error")
	}
}
