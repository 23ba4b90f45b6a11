// Package remote is the HTTP client for the transactions REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"spndr/internal/core"
	"spndr/internal/log"
)

const (
	transactionsEndpoint = "/api/transactions"
	contentType          = "application/json"
	userAgent            = "spndr-client/1.0"

	// DefaultTimeout bounds one request. Past it the call is a failure.
	DefaultTimeout = 10 * time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RetryMax is the number of extra attempts after the first. Zero keeps
	// every call single-shot.
	RetryMax   int
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client talks to the REST API.
type Client struct {
	baseURL     string
	retryClient *retryablehttp.Client
	logger      *log.Logger
}

// CreateRequest is the body of POST /api/transactions.
type CreateRequest struct {
	UserID      string               `json:"user_id"`
	Title       string               `json:"title"`
	Amount      json.Number          `json:"amount"`
	Category    string               `json:"category"`
	Type        core.TransactionType `json:"type"`
	Date        core.Date            `json:"date"`
	Description string               `json:"description,omitempty"`
}

// NewCreateRequest builds the create body for a transaction.
func NewCreateRequest(tx core.Transaction) CreateRequest {
	return CreateRequest{
		UserID:      tx.UserID,
		Title:       tx.Title,
		Amount:      json.Number(tx.Amount.String()),
		Category:    tx.Category,
		Type:        tx.Type,
		Date:        tx.Date,
		Description: tx.Description,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (e envelope) reason() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// New creates a client. Missing options take their defaults.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	logger := opts.Logger.WithComponent(log.ComponentRemote)

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = opts.HTTPClient
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = logger.Slog()
	// Hand the last response back untouched so status codes can be classified.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		retryClient: retryClient,
		logger:      logger,
	}
}

// List fetches every transaction.
func (c *Client) List(ctx context.Context) ([]core.Transaction, error) {
	var txs []core.Transaction
	if err := c.do(ctx, "list", http.MethodGet, transactionsEndpoint, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// Create inserts a transaction and returns the stored record.
func (c *Client) Create(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	var created core.Transaction
	if err := c.do(ctx, "create", http.MethodPost, transactionsEndpoint, NewCreateRequest(tx), &created); err != nil {
		return core.Transaction{}, err
	}
	return created, nil
}

// Update sends the non-nil fields of patch and returns the stored record.
func (c *Client) Update(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	var updated core.Transaction
	if err := c.do(ctx, "update", http.MethodPut, transactionPath(id), patch, &updated); err != nil {
		return core.Transaction{}, err
	}
	return updated, nil
}

// Delete removes one transaction.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete", http.MethodDelete, transactionPath(id), nil, nil)
}

// Clear removes every transaction.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, "clear", http.MethodDelete, transactionsEndpoint, nil, nil)
}

func transactionPath(id string) string {
	return transactionsEndpoint + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "%s: failed to marshal request", op)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Op: op, Err: errors.Wrap(err, "failed to create request")}
	}
	req.Header.Set("Accept", contentType)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.retryClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: errors.Wrap(err, "failed to read response")}
	}

	c.logger.DebugContext(ctx, "API response",
		log.FieldOperation, op,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds(),
	)

	var env envelope
	decodeErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rej := &RejectionError{Op: op, StatusCode: resp.StatusCode}
		if decodeErr == nil {
			rej.Message = env.reason()
		}
		return rej
	}
	if decodeErr != nil {
		return &TransportError{Op: op, Err: errors.Wrap(decodeErr, "failed to parse response")}
	}
	if !env.Success {
		return &RejectionError{Op: op, StatusCode: resp.StatusCode, Message: env.reason()}
	}

	if result != nil {
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return &TransportError{Op: op, Err: errors.New("response has no data")}
		}
		if err := json.Unmarshal(env.Data, result); err != nil {
			return &TransportError{Op: op, Err: errors.Wrap(err, "failed to unmarshal data")}
		}
	}
	return nil
}
