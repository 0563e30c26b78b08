package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/freightdesk/internal/platform/httpx"
	"github.com/odyssey-erp/freightdesk/internal/shared"
)

func newTestServer(t *testing.T, f *fixture, guards ...IdempotencyGuard) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if req.Header.Get("X-Test-Staff") == "" {
					next.ServeHTTP(w, req)
					return
				}
				next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), staff())))
			})
		})
		h := NewHandler(logger, f.svc)
		if len(guards) > 0 {
			h.WithIdempotency(guards[0])
		}
		h.MountRoutes(r)
	})
	r.Route("/public", NewPublicHandler(logger, f.gateway).MountRoutes)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, asStaff bool) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if asStaff {
		req.Header.Set("X-Test-Staff", "1")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeProblem(t *testing.T, resp *http.Response) httpx.ProblemDetail {
	t.Helper()
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	var p httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	return p
}

func TestHandlerCreateQuote(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/quotes", guestRequest(), true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "DEV-2026-0001", body["reference"])
	assert.Equal(t, "DRAFT", body["status"])
	assert.Equal(t, "265.5", body["total_ttc"])
	assert.NotContains(t, body, "public_token")
}

func TestHandlerRequiresStaffActor(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/quotes", guestRequest(), false)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, decodeProblem(t, resp).Status)
}

func TestHandlerValidationProblem(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)

	req := guestRequest()
	req.Customer.Email = "not-an-email"
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/quotes", req, true)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "customer.email", decodeProblem(t, resp).Field)

	raw, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/quotes", strings.NewReader(`{"unknown":1}`))
	require.NoError(t, err)
	raw.Header.Set("X-Test-Staff", "1")
	resp, err = http.DefaultClient.Do(raw)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerGetDetail(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)
	quote := f.move(t, f.createQuote(t), StatusSent)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/quotes/1", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail struct {
		Document struct {
			Reference string `json:"reference"`
		} `json:"document"`
		History []HistoryEntry `json:"history"`
		Allowed []Status       `json:"allowed_transitions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	assert.Equal(t, quote.Reference, detail.Document.Reference)
	assert.Len(t, detail.History, 1)
	assert.Equal(t, []Status{StatusViewed, StatusChangeRequested, StatusAccepted, StatusRejected}, detail.Allowed)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/invoices/1", nil, true)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerPublicAcceptTwice(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)
	quote := f.createQuote(t)
	url := srv.URL + "/public/quote/" + quote.PublicToken + "/accept"

	resp := doJSON(t, http.MethodPost, url, nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, url, nil, false)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Already Processed", decodeProblem(t, resp).Title)
}

func TestHandlerPublicUnknownToken(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)
	inv := f.createInvoice(t)

	for _, path := range []string{
		"/public/quote/nope",
		"/public/quote/" + inv.PublicToken,
		"/public/invoice/" + strings.Repeat("A", tokenLength),
	} {
		resp := doJSON(t, http.MethodGet, srv.URL+path, nil, false)
		require.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "document not found", decodeProblem(t, resp).Detail, path)
	}
}

func TestHandlerPublicRequestChangesNeedsComment(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)
	quote := f.createQuote(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/public/quote/"+quote.PublicToken+"/request-changes", DecisionRequest{}, false)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "comment", decodeProblem(t, resp).Field)
	assert.Equal(t, StatusDraft, f.repo.stored(quote.ID).Status)
}

type memoryGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (g *memoryGuard) CheckAndInsert(ctx context.Context, key, scope string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys[scope+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	g.keys[scope+"/"+key] = true
	return nil
}

func (g *memoryGuard) Release(ctx context.Context, key, scope string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, scope+"/"+key)
	return nil
}

func postPayment(t *testing.T, srv *httptest.Server, id int64, amount, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/v1/invoices/%d/payments", srv.URL, id),
		strings.NewReader(`{"amount":"`+amount+`","reference":"WIRE-7"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Staff", "1")
	req.Header.Set("Idempotency-Key", key)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHandlerPaymentIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	guard := &memoryGuard{keys: map[string]bool{}}
	srv := newTestServer(t, f, guard)
	inv := f.move(t, f.createInvoice(t), StatusSent)

	resp := postPayment(t, srv, inv.ID, "100", "pay-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postPayment(t, srv, inv.ID, "100", "pay-1")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Duplicate", decodeProblem(t, resp).Title)

	doc, err := f.svc.Get(context.Background(), KindInvoice, inv.ID)
	require.NoError(t, err)
	requireAmount(t, "100.00", doc.AmountPaid)

	// a rejected payment frees its key
	resp = postPayment(t, srv, inv.ID, "5000", "pay-2")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = postPayment(t, srv, inv.ID, "195", "pay-2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
