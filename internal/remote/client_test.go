package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spndr/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Options{BaseURL: server.URL + "/", Timeout: 2 * time.Second})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestList_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/transactions", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"success":true,"data":[
			{"id":"1","user_id":"user_1","title":"Salary","amount":"1500.00","category":"Salary","type":"income","date":"2024-03-01"},
			{"id":"2","user_id":"user_1","title":"Lunch","amount":12.5,"category":"Food","type":"expense","date":"2024-03-02T00:00:00.000Z"}
		]}`)
	})

	txs, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "1", txs[0].ID)
	assert.True(t, txs[0].Amount.Equal(decimal.RequireFromString("1500")))
	assert.True(t, txs[1].Amount.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, core.NewDate(2024, 3, 2), txs[1].Date)
}

func TestFailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
		rejection  bool
	}{
		{
			name:       "success flag false",
			status:     http.StatusOK,
			body:       `{"success":false,"error":"Failed to fetch transactions"}`,
			wantStatus: http.StatusOK,
			wantMsg:    "Failed to fetch transactions",
			rejection:  true,
		},
		{
			name:       "server error with envelope",
			status:     http.StatusInternalServerError,
			body:       `{"success":false,"error":"database down"}`,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "database down",
			rejection:  true,
		},
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			body:       `{"success":false,"error":"Too many requests, please try again later","retryAfter":60}`,
			wantStatus: http.StatusTooManyRequests,
			rejection:  true,
		},
		{
			name:       "error status with html body",
			status:     http.StatusBadGateway,
			body:       `<html>bad gateway</html>`,
			wantStatus: http.StatusBadGateway,
			rejection:  true,
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `{"success":tru`,
		},
		{
			name:   "success without data",
			status: http.StatusOK,
			body:   `{"success":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := client.List(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnavailable), "every failure should be unavailable: %v", err)

			var rej *RejectionError
			if tt.rejection {
				require.True(t, errors.As(err, &rej), "expected rejection, got %T", err)
				assert.Equal(t, tt.wantStatus, rej.StatusCode)
				if tt.wantMsg != "" {
					assert.Contains(t, err.Error(), tt.wantMsg)
				}
			} else {
				var te *TransportError
				assert.True(t, errors.As(err, &te), "expected transport error, got %T", err)
			}
		})
	}
}

func TestTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := New(Options{BaseURL: url, Timeout: time.Second})
	err := client.Delete(context.Background(), "5")

	var te *TransportError
	require.True(t, errors.As(err, &te), "expected transport error, got %v", err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, "delete", te.Op)
}

func TestTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client := New(Options{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := client.List(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestSingleShotByDefault(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, `{"success":false}`)
	})

	_, err := client.List(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryMaxRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, `{"success":false}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"success":true,"data":[]}`)
	}))
	t.Cleanup(server.Close)

	client := New(Options{BaseURL: server.URL, RetryMax: 1})
	client.retryClient.RetryWaitMin = time.Millisecond
	client.retryClient.RetryWaitMax = time.Millisecond

	txs, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCreate_SendsBodyAndReturnsCanonicalRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user_1", body["user_id"])
		assert.Equal(t, "Coffee", body["title"])
		assert.Equal(t, 3.5, body["amount"])
		assert.Equal(t, "expense", body["type"])
		assert.Equal(t, "2024-05-01", body["date"])
		assert.NotContains(t, body, "description")
		assert.NotContains(t, body, "id")

		writeJSON(w, http.StatusCreated, `{"success":true,"data":{"id":"42","user_id":"user_1","title":"Coffee","amount":"3.50","category":"Food","type":"expense","date":"2024-05-01"}}`)
	})

	created, err := client.Create(context.Background(), core.Transaction{
		ID:       "local-id",
		UserID:   "user_1",
		Title:    "Coffee",
		Amount:   decimal.RequireFromString("3.5"),
		Category: "Food",
		Type:     core.Expense,
		Date:     core.NewDate(2024, 5, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, "42", created.ID)
}

func TestUpdate_SendsOnlyPatchedFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/transactions/a%2Fb", r.URL.EscapedPath())

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"title": "Dinner"}, body)

		writeJSON(w, http.StatusOK, `{"success":true,"data":{"id":"a/b","title":"Dinner","amount":"20","category":"Food","type":"expense","date":"2024-05-01"}}`)
	})

	title := "Dinner"
	updated, err := client.Update(context.Background(), "a/b", core.TransactionPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Dinner", updated.Title)
}

func TestUpdate_NotFoundIsRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"success":false,"error":"Transaction not found"}`)
	})

	_, err := client.Update(context.Background(), "missing", core.TransactionPatch{})
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, http.StatusNotFound, rej.StatusCode)
	assert.Equal(t, "Transaction not found", rej.Message)
}

func TestDeleteAndClear(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		paths = append(paths, r.URL.Path)
		writeJSON(w, http.StatusOK, `{"success":true,"message":"ok"}`)
	})

	require.NoError(t, client.Delete(context.Background(), "5"))
	require.NoError(t, client.Clear(context.Background()))
	assert.Equal(t, []string{"/api/transactions/5", "/api/transactions"}, paths)
}
