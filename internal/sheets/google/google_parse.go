package google

import (
	"fmt"
	"strings"
	"time"

	"spndr/internal/sheets"
)

// parseRows converts a values matrix (as returned by Sheets API) into rows.
// The header row and rows without an action are skipped.
func parseRows(values [][]any) []sheets.Row {
	out := make([]sheets.Row, 0, len(values))
	for i, raw := range values {
		cols := toStrings(raw)
		if i == 0 && strings.EqualFold(safeGet(cols, 0), sheets.Header[0]) {
			continue
		}
		action := sheets.Action(strings.ToLower(safeGet(cols, 6)))
		if action == "" {
			continue
		}
		row := sheets.Row{
			Date:     safeGet(cols, 0),
			Title:    safeGet(cols, 1),
			Category: safeGet(cols, 2),
			Type:     safeGet(cols, 3),
			Amount:   safeGet(cols, 4),
			ID:       safeGet(cols, 5),
			Action:   action,
		}
		if at, err := time.Parse(time.RFC3339, safeGet(cols, 7)); err == nil {
			row.RecordedAt = at
		}
		out = append(out, row)
	}
	return out
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
