package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"spndr/internal/core"
	"spndr/internal/sheets"
)

// fakeSheets serves the subset of the Sheets values API the client uses.
type fakeSheets struct {
	mu     sync.Mutex
	values [][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		var vr gsheet.ValueRange
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.values = append(f.values, vr.Values...)
		n := len(f.values)
		json.NewEncoder(w).Encode(map[string]any{
			"spreadsheetId": "sheet-1",
			"updates":       map[string]any{"updatedRange": "Transactions!A" + strconv.Itoa(n) + ":H" + strconv.Itoa(n)},
		})
	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &vr)
		if len(f.values) == 0 {
			f.values = append(f.values, vr.Values...)
		} else {
			f.values[0] = vr.Values[0]
		}
		json.NewEncoder(w).Encode(map[string]any{"updatedRows": 1})
	case r.Method == http.MethodGet:
		vals := f.values
		if strings.Contains(r.URL.Path, "A1:H1") && len(vals) > 1 {
			vals = vals[:1]
		}
		json.NewEncoder(w).Encode(map[string]any{"range": "Transactions!A:H", "values": vals})
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	}
}

func newFakeClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewWithService(svc, "sheet-1", "", nil), fake
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), " ", "", nil)
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := New(context.Background(), "sheet-1", "", nil)
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "/nonexistent/creds.json")

	_, err := New(context.Background(), "sheet-1", "", nil)
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if _, err := c.AppendRow(context.Background(), sheets.Row{Action: sheets.ActionCreated}); err == nil {
		t.Fatal("expected error with nil service")
	}
	if _, err := c.ListRows(context.Background()); err == nil {
		t.Fatal("expected error with nil service")
	}
}

func TestClient_AppendAndList(t *testing.T) {
	c, fake := newFakeClient(t)
	ctx := context.Background()

	if err := c.EnsureHeader(ctx); err != nil {
		t.Fatalf("EnsureHeader: %v", err)
	}
	if err := c.EnsureHeader(ctx); err != nil {
		t.Fatalf("second EnsureHeader: %v", err)
	}
	if len(fake.values) != 1 {
		t.Fatalf("header written %d times", len(fake.values))
	}

	at := time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
	tx := core.Transaction{ID: "12", Title: "Rent", Amount: decimal.NewFromInt(900), Category: "Housing", Type: core.Expense, Date: core.NewDate(2024, 4, 1)}

	ref, err := c.AppendRow(ctx, sheets.TransactionRow(sheets.ActionCreated, tx, at))
	if err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if ref != "Transactions!A2:H2" {
		t.Errorf("ref = %q", ref)
	}
	if _, err := c.AppendRow(ctx, sheets.TombstoneRow(sheets.ActionDeleted, "12", at)); err != nil {
		t.Fatal(err)
	}

	rows, err := c.ListRows(ctx)
	if err != nil {
		t.Fatalf("ListRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Title != "Rent" || rows[0].Amount != "900.00" || rows[0].ID != "12" || !rows[0].RecordedAt.Equal(at) {
		t.Errorf("first row = %+v", rows[0])
	}
	if !rows[1].IsTombstone() || rows[1].ID != "12" {
		t.Errorf("second row = %+v", rows[1])
	}
}

func TestParseRows(t *testing.T) {
	values := [][]any{
		{"date", "title", "category", "type", "amount", "id", "action", "recorded_at"},
		{"2024-01-02", "Coffee", "Food", "expense", 3.5, "4", "CREATED", "2024-01-02T08:00:00Z"},
		{"", "", "", "", "", "", ""},
		{"2024-01-03", "", "", "", "", "", "cleared", "garbage"},
	}
	rows := parseRows(values)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Action != sheets.ActionCreated || rows[0].Amount != "3.5" {
		t.Errorf("first row = %+v", rows[0])
	}
	if rows[1].Action != sheets.ActionCleared || !rows[1].RecordedAt.IsZero() {
		t.Errorf("second row = %+v", rows[1])
	}
}
