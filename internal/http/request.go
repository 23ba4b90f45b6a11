package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"spndr/internal/core"
	"spndr/internal/storage"
)

const maxBodyBytes = 1 << 20

var errMissingFields = errors.New("all fields are required")

// createRequest is the POST /api/transactions body.
type createRequest struct {
	UserID      string      `json:"user_id"`
	Title       string      `json:"title"`
	Amount      json.Number `json:"amount"`
	Category    string      `json:"category"`
	Type        string      `json:"type"`
	Date        string      `json:"date"`
	Description string      `json:"description"`
}

// decodeJSON reads one JSON object from the body, rejecting unknown
// trailing data and bodies over maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("decode body: unexpected data after JSON object")
	}
	return nil
}

// toTransaction validates presence and formats; field rules are left to
// core.Transaction.Validate.
func (req createRequest) toTransaction() (core.Transaction, error) {
	userID := sanitizeInput(req.UserID)
	title := sanitizeInput(req.Title)
	category := sanitizeInput(req.Category)
	if userID == "" || title == "" || category == "" || req.Amount == "" || req.Type == "" || req.Date == "" {
		return core.Transaction{}, errMissingFields
	}

	amount, err := core.ParseAmount(req.Amount.String())
	if err != nil {
		return core.Transaction{}, err
	}
	typ, err := core.ParseTransactionType(req.Type)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		return core.Transaction{}, core.ErrInvalidDate
	}

	return core.Transaction{
		UserID:      userID,
		Title:       title,
		Amount:      amount,
		Category:    category,
		Type:        typ,
		Date:        date,
		Description: sanitizeInput(req.Description),
	}, nil
}

// parseListFilter reads user_id, type and limit from the query string.
func parseListFilter(query url.Values) (storage.ListFilter, error) {
	filter := storage.ListFilter{UserID: strings.TrimSpace(query.Get("user_id"))}

	typ, err := core.ParseTransactionType(query.Get("type"))
	if err != nil {
		return storage.ListFilter{}, err
	}
	filter.Type = typ

	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return storage.ListFilter{}, fmt.Errorf("invalid limit %q", v)
		}
		filter.Limit = n
	}
	return filter, nil
}

// parseTop reads the top query parameter. Missing means all categories.
func parseTop(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("top"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid top %q", v)
	}
	return n, nil
}

// sanitizeInput drops control characters (except tab and newlines) and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

var validationErrors = []error{
	core.ErrEmptyTitle,
	core.ErrEmptyCategory,
	core.ErrEmptyUser,
	core.ErrInvalidType,
	core.ErrInvalidAmount,
	core.ErrInvalidDate,
	core.ErrTitleTooLong,
	core.ErrCategoryTooLong,
	errMissingFields,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
