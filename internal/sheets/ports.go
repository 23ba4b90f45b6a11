package sheets

import (
	"context"
	"time"

	"spndr/internal/core"
)

// Action names the change a mirrored row records.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
	ActionCleared Action = "cleared"
)

// Row is one line of the mirror sheet. Tombstones (deleted, cleared) carry
// only the id, or the count of cleared rows in Title.
type Row struct {
	Date       string
	Title      string
	Category   string
	Type       string
	Amount     string
	ID         string
	Action     Action
	RecordedAt time.Time
}

// Header is the column layout of the mirror sheet.
var Header = []string{"date", "title", "category", "type", "amount", "id", "action", "recorded_at"}

// Ports for outbound adapters.
type (
	// TransactionMirror appends rows to the mirror and returns a reference
	// to where the row landed.
	TransactionMirror interface {
		AppendRow(ctx context.Context, row Row) (rowRef string, err error)
	}

	// RowLister reads the mirror back.
	RowLister interface {
		ListRows(ctx context.Context) ([]Row, error)
	}
)

// TransactionRow builds the row for a created or updated transaction.
func TransactionRow(action Action, tx core.Transaction, at time.Time) Row {
	return Row{
		Date:       tx.Date.String(),
		Title:      tx.Title,
		Category:   tx.Category,
		Type:       string(tx.Type),
		Amount:     tx.Amount.StringFixed(2),
		ID:         tx.ID,
		Action:     action,
		RecordedAt: at.UTC(),
	}
}

// TombstoneRow builds the row for a deletion. id is empty for a clear.
func TombstoneRow(action Action, id string, at time.Time) Row {
	return Row{
		Date:       at.UTC().Format("2006-01-02"),
		ID:         id,
		Action:     action,
		RecordedAt: at.UTC(),
	}
}

// Values renders the row in Header order.
func (r Row) Values() []any {
	return []any{r.Date, r.Title, r.Category, r.Type, r.Amount, r.ID, string(r.Action), r.RecordedAt.Format(time.RFC3339)}
}

// IsTombstone reports whether the row marks a removal.
func (r Row) IsTombstone() bool {
	return r.Action == ActionDeleted || r.Action == ActionCleared
}

// LiveRows folds rows in append order into the latest row of every
// transaction still present in the mirror.
func LiveRows(rows []Row) map[string]Row {
	live := make(map[string]Row)
	for _, r := range rows {
		switch r.Action {
		case ActionCreated, ActionUpdated:
			live[r.ID] = r
		case ActionDeleted:
			delete(live, r.ID)
		case ActionCleared:
			clear(live)
		}
	}
	return live
}
