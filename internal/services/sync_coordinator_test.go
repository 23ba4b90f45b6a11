package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spndr/internal/core"
	"spndr/internal/local"
	"spndr/internal/remote"
)

var errNetwork = &remote.TransportError{Op: "test", Err: errors.New("connection refused")}

type fakeRemote struct {
	err   error
	txs   []core.Transaction
	calls []string

	created core.Transaction
	updated core.Transaction
}

func (f *fakeRemote) List(context.Context) ([]core.Transaction, error) {
	f.calls = append(f.calls, "list")
	if f.err != nil {
		return nil, f.err
	}
	return f.txs, nil
}

func (f *fakeRemote) Create(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	f.calls = append(f.calls, "create")
	if f.err != nil {
		return core.Transaction{}, f.err
	}
	return f.created, nil
}

func (f *fakeRemote) Update(_ context.Context, id string, _ core.TransactionPatch) (core.Transaction, error) {
	f.calls = append(f.calls, "update:"+id)
	if f.err != nil {
		return core.Transaction{}, f.err
	}
	return f.updated, nil
}

func (f *fakeRemote) Delete(_ context.Context, id string) error {
	f.calls = append(f.calls, "delete:"+id)
	return f.err
}

func (f *fakeRemote) Clear(context.Context) error {
	f.calls = append(f.calls, "clear")
	return f.err
}

// failingLocal wraps a store and fails every write.
type failingLocal struct {
	*local.Store
}

func (failingLocal) Upsert(context.Context, core.Transaction) error {
	return errors.New("disk full")
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newCoordinator(t *testing.T, r RemoteStore, seed ...core.Transaction) (*SyncCoordinator, *local.Store) {
	t.Helper()
	store := local.NewStore(local.NewMemoryBlob(), "", nil)
	for _, tx := range seed {
		if err := store.Upsert(context.Background(), tx); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	config := SyncCoordinatorConfig{
		UserID: "user_1",
		Now:    func() time.Time { return fixedNow },
		NewID:  func() string { return "local-1" },
	}
	return NewSyncCoordinator(r, store, config, nil), store
}

func txn(id, title, amount string, typ core.TransactionType) core.Transaction {
	return core.Transaction{
		ID:       id,
		UserID:   "user_1",
		Title:    title,
		Amount:   decimal.RequireFromString(amount),
		Category: "General",
		Type:     typ,
		Date:     core.NewDate(2024, 5, 20),
	}
}

func localIDs(t *testing.T, store *local.Store) []string {
	t.Helper()
	txs, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

func TestList_RemoteSuccessIsNotMerged(t *testing.T) {
	r := &fakeRemote{txs: []core.Transaction{txn("10", "Salary", "3000", core.Income)}}
	c, _ := newCoordinator(t, r, txn("1", "Local only", "5", core.Expense))

	txs, out, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if out.Source != SourceRemote || out.RemoteErr != nil {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(txs) != 1 || txs[0].ID != "10" {
		t.Fatalf("expected only remote records, got %+v", txs)
	}
}

func TestList_RemoteEmptyIsEmptySlice(t *testing.T) {
	c, _ := newCoordinator(t, &fakeRemote{})
	txs, _, err := c.List(context.Background())
	if err != nil || txs == nil || len(txs) != 0 {
		t.Fatalf("List = %v, %v; want empty non-nil slice", txs, err)
	}
}

func TestList_FallsBackToLocalUnchanged(t *testing.T) {
	seed := txn("1", "Gift", "50", core.Income)
	c, _ := newCoordinator(t, &fakeRemote{err: errNetwork}, seed)

	txs, out, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !out.FellBack() || !errors.Is(out.RemoteErr, remote.ErrUnavailable) {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(txs) != 1 || txs[0].ID != "1" || !txs[0].Amount.Equal(decimal.NewFromInt(50)) || txs[0].Type != core.Income {
		t.Fatalf("local contents changed: %+v", txs)
	}
}

func TestList_AllFailureKindsFallBack(t *testing.T) {
	failures := map[string]error{
		"transport": errNetwork,
		"status":    &remote.RejectionError{Op: "list", StatusCode: 500},
		"envelope":  &remote.RejectionError{Op: "list", StatusCode: 200, Message: "Failed to fetch transactions"},
		"other":     errors.New("unexpected"),
	}
	for name, failure := range failures {
		t.Run(name, func(t *testing.T) {
			c, _ := newCoordinator(t, &fakeRemote{err: failure}, txn("1", "a", "1", core.Expense))
			txs, out, err := c.List(context.Background())
			if err != nil {
				t.Fatalf("failure surfaced: %v", err)
			}
			if !out.FellBack() || len(txs) != 1 {
				t.Fatalf("expected local fallback, got %+v %+v", out, txs)
			}
		})
	}
}

func TestCreate_RemoteSuccessCachesCanonicalRecord(t *testing.T) {
	canonical := txn("42", "Coffee", "3.50", core.Expense)
	r := &fakeRemote{created: canonical}
	c, store := newCoordinator(t, r)

	draft := txn("", "Coffee", "3.50", core.Expense)
	got, out, err := c.Create(context.Background(), draft)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if out.Source != SourceRemote || got.ID != "42" {
		t.Fatalf("got %+v outcome %+v", got, out)
	}
	ids := localIDs(t, store)
	if len(ids) != 1 || ids[0] != "42" {
		t.Fatalf("local store = %v, want exactly [42]", ids)
	}
}

func TestCreate_RemoteSuccessReplacesExistingCopy(t *testing.T) {
	canonical := txn("42", "Coffee", "4.00", core.Expense)
	c, store := newCoordinator(t, &fakeRemote{created: canonical}, txn("42", "Coffee", "3.50", core.Expense))

	if _, _, err := c.Create(context.Background(), txn("", "Coffee", "4.00", core.Expense)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	txs, _ := store.All(context.Background())
	if len(txs) != 1 || !txs[0].Amount.Equal(decimal.RequireFromString("4")) {
		t.Fatalf("expected one replaced record, got %+v", txs)
	}
}

func TestCreate_FallbackSynthesizesLocalRecord(t *testing.T) {
	c, store := newCoordinator(t, &fakeRemote{err: errNetwork})

	draft := txn("", "Offline lunch", "12", core.Expense)
	draft.UserID = ""
	got, out, err := c.Create(context.Background(), draft)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !out.FellBack() {
		t.Fatalf("expected fallback, got %+v", out)
	}
	if got.ID != "local-1" || got.UserID != "user_1" {
		t.Fatalf("id or owner not filled in: %+v", got)
	}
	if !got.CreatedAt.Equal(fixedNow) || !got.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("timestamps not set from clock: %+v", got)
	}
	ids := localIDs(t, store)
	if len(ids) != 1 || ids[0] != "local-1" {
		t.Fatalf("local store = %v", ids)
	}
}

func TestCreate_DefaultIDsAreTimeOrderedUUIDs(t *testing.T) {
	store := local.NewStore(local.NewMemoryBlob(), "", nil)
	c := NewSyncCoordinator(&fakeRemote{err: errNetwork}, store, DefaultSyncCoordinatorConfig("user_1"), nil)

	got, _, err := c.Create(context.Background(), txn("", "x", "1", core.Expense))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id, err := uuid.Parse(got.ID)
	if err != nil || id.Version() != 7 {
		t.Fatalf("id %q is not a UUIDv7 (err=%v)", got.ID, err)
	}
}

func TestCreate_InvalidDraftTouchesNothing(t *testing.T) {
	r := &fakeRemote{}
	c, store := newCoordinator(t, r)

	_, _, err := c.Create(context.Background(), txn("", "", "1", core.Expense))
	if !errors.Is(err, core.ErrEmptyTitle) {
		t.Fatalf("Create error = %v, want ErrEmptyTitle", err)
	}
	if len(r.calls) != 0 || len(localIDs(t, store)) != 0 {
		t.Fatalf("invalid draft reached a store: calls=%v", r.calls)
	}
}

func TestCreate_CacheFailureIsSurfaced(t *testing.T) {
	store := local.NewStore(local.NewMemoryBlob(), "", nil)
	c := NewSyncCoordinator(&fakeRemote{created: txn("42", "x", "1", core.Expense)}, failingLocal{store}, SyncCoordinatorConfig{UserID: "user_1"}, nil)

	_, out, err := c.Create(context.Background(), txn("", "x", "1", core.Expense))
	if err == nil {
		t.Fatal("expected local write failure to be returned")
	}
	if out.Source != SourceRemote {
		t.Fatalf("outcome %+v", out)
	}
}

func TestUpdate_RemoteSuccessUpsertsReturnedRecord(t *testing.T) {
	updated := txn("7", "Dinner", "30", core.Expense)
	c, store := newCoordinator(t, &fakeRemote{updated: updated}, txn("7", "Lunch", "15", core.Expense))

	title := "Dinner"
	got, out, err := c.Update(context.Background(), "7", core.TransactionPatch{Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if out.Source != SourceRemote || got.Title != "Dinner" {
		t.Fatalf("got %+v outcome %+v", got, out)
	}
	txs, _ := store.All(context.Background())
	if len(txs) != 1 || txs[0].Title != "Dinner" || !txs[0].Amount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("local copy not replaced: %+v", txs)
	}
}

func TestUpdate_FallbackMergesPatch(t *testing.T) {
	seed := txn("7", "Lunch", "15", core.Expense)
	seed.CreatedAt = time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	c, store := newCoordinator(t, &fakeRemote{err: errNetwork}, seed)

	amount := decimal.NewFromInt(18)
	got, out, err := c.Update(context.Background(), "7", core.TransactionPatch{Amount: &amount})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !out.FellBack() {
		t.Fatalf("expected fallback, got %+v", out)
	}
	if !got.Amount.Equal(amount) || got.Title != "Lunch" {
		t.Fatalf("patch not merged: %+v", got)
	}
	if !got.UpdatedAt.Equal(fixedNow) || !got.CreatedAt.Equal(seed.CreatedAt) {
		t.Fatalf("timestamps wrong: %+v", got)
	}
	txs, _ := store.All(context.Background())
	if !txs[0].Amount.Equal(amount) {
		t.Fatalf("patch not persisted: %+v", txs[0])
	}
}

func TestUpdate_FallbackMissingIsNotFound(t *testing.T) {
	blob := local.NewMemoryBlob()
	store := local.NewStore(blob, "", nil)
	if err := store.Upsert(context.Background(), txn("1", "Rent", "900", core.Expense)); err != nil {
		t.Fatal(err)
	}
	before, _ := blob.Get(context.Background(), local.DefaultKey)

	c := NewSyncCoordinator(&fakeRemote{err: errNetwork}, store, SyncCoordinatorConfig{UserID: "user_1"}, nil)
	title := "x"
	_, out, err := c.Update(context.Background(), "nonexistent", core.TransactionPatch{Title: &title})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Update error = %v, want ErrNotFound", err)
	}
	if !out.FellBack() {
		t.Fatalf("outcome %+v", out)
	}
	after, _ := blob.Get(context.Background(), local.DefaultKey)
	if string(before) != string(after) {
		t.Fatalf("local store changed")
	}
}

func TestUpdate_InvalidPatchRejectedUpFront(t *testing.T) {
	r := &fakeRemote{}
	c, _ := newCoordinator(t, r)
	bad := core.TransactionType("refund")

	_, _, err := c.Update(context.Background(), "1", core.TransactionPatch{Type: &bad})
	if !errors.Is(err, core.ErrInvalidType) {
		t.Fatalf("Update error = %v, want ErrInvalidType", err)
	}
	if len(r.calls) != 0 {
		t.Fatalf("remote called with invalid patch: %v", r.calls)
	}
}

func TestDelete_AlwaysRemovesLocally(t *testing.T) {
	tests := []struct {
		name       string
		remoteErr  error
		wantSource Source
	}{
		{"remote succeeds", nil, SourceRemote},
		{"remote fails", errNetwork, SourceLocal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRemote{err: tt.remoteErr}
			c, store := newCoordinator(t, r, txn("4", "a", "1", core.Expense), txn("5", "b", "2", core.Expense))

			out, err := c.Delete(context.Background(), "5")
			if err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if out.Source != tt.wantSource {
				t.Fatalf("source = %s, want %s", out.Source, tt.wantSource)
			}
			ids := localIDs(t, store)
			if len(ids) != 1 || ids[0] != "4" {
				t.Fatalf("local store = %v, want [4]", ids)
			}
			if len(r.calls) != 1 || r.calls[0] != "delete:5" {
				t.Fatalf("remote calls = %v", r.calls)
			}
		})
	}
}

func TestClearAll_AlwaysClearsLocally(t *testing.T) {
	for _, remoteErr := range []error{nil, errNetwork} {
		c, store := newCoordinator(t, &fakeRemote{err: remoteErr}, txn("1", "a", "1", core.Expense))
		if _, err := c.ClearAll(context.Background()); err != nil {
			t.Fatalf("ClearAll(remoteErr=%v): %v", remoteErr, err)
		}
		if ids := localIDs(t, store); len(ids) != 0 {
			t.Fatalf("local store not cleared (remoteErr=%v): %v", remoteErr, ids)
		}
	}
}

func TestSummaryAndCategoriesUseList(t *testing.T) {
	seed := []core.Transaction{
		txn("1", "Salary", "1000", core.Income),
		txn("2", "Food", "250", core.Expense),
	}
	c, _ := newCoordinator(t, &fakeRemote{err: errNetwork}, seed...)

	sum, out, err := c.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !out.FellBack() {
		t.Fatalf("outcome %+v", out)
	}
	if !sum.Balance.Equal(decimal.NewFromInt(750)) || sum.TransactionCount != 2 {
		t.Fatalf("summary = %+v", sum)
	}

	cats, _, err := c.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(cats) != 1 || cats[0].Category != "General" || cats[0].Percentage != 100 {
		t.Fatalf("categories = %+v", cats)
	}
}

func TestSyncStateNames(t *testing.T) {
	want := map[syncState]string{
		stateAttemptRemote:        "attempt_remote",
		stateCommitLocalCache:     "commit_local_cache",
		stateAttemptLocalFallback: "attempt_local_fallback",
		stateReturn:               "return",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), name)
		}
	}
}
