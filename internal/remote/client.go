package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/scantrad/scantrad/internal/schema"
)

// headerPseudo carries the current identity on every request.
const headerPseudo = "X-User-Pseudo"

// Client is the HTTP client for the translation backend.
//
// All requests are scoped to the session's identity. Failed requests
// surface either ErrNetwork (no response) or an *APIError (backend
// responded with an error status); the client never retries on its own.
type Client struct {
	baseURL string
	http    *http.Client
	session *Session
	cache   *TagCache
	logger  *log.Logger
}

// NewClient creates a backend client. If logger is nil, a default logger
// writing to stderr is used.
func NewClient(baseURL string, session *Session, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		session: session,
		cache:   NewTagCache(),
		logger:  logger,
	}
}

// Session returns the client's session.
func (c *Client) Session() *Session {
	return c.session
}

// Login authenticates (and implicitly registers) the pseudo with the
// backend, then stores it in the session. The backend rejects pseudos
// shorter than two characters; that precondition is checked here too so a
// bad pseudo never reaches the wire.
func (c *Client) Login(ctx context.Context, pseudo string) (*schema.LoginResponse, error) {
	pseudo = strings.TrimSpace(pseudo)
	if len(pseudo) < 2 {
		return nil, fmt.Errorf("pseudo must be at least 2 characters")
	}

	var resp schema.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", schema.LoginRequest{Pseudo: pseudo}, &resp, false); err != nil {
		return nil, err
	}
	if err := c.session.set(pseudo); err != nil {
		return nil, err
	}
	c.cache.InvalidateAll()
	c.logger.Printf("Logged in as %s", pseudo)
	return &resp, nil
}

// Logout clears the identity and drops every cached query.
func (c *Client) Logout() error {
	c.cache.InvalidateAll()
	return c.session.Clear()
}

// SubmitBatch uploads pages in one round trip and returns the
// server-assigned batch id. On success the user's cached batch list is
// invalidated so dependent views refetch.
func (c *Client) SubmitBatch(ctx context.Context, pages []schema.PageUpload) (string, error) {
	if len(pages) == 0 {
		return "", fmt.Errorf("no pages to submit")
	}

	var resp schema.UploadBatchResponse
	if err := c.do(ctx, http.MethodPost, "/upload-batch", schema.UploadBatchRequest{Pages: pages}, &resp, true); err != nil {
		return "", err
	}

	c.cache.Invalidate(tagBatches(c.session.Pseudo()))
	c.logger.Printf("Submitted batch %s (%d pages)", resp.BatchID, len(pages))
	return resp.BatchID, nil
}

// FetchBatchStatus reads the authoritative page statuses for a batch.
// The result is cached under the batch's status tag until invalidated.
func (c *Client) FetchBatchStatus(ctx context.Context, batchID string) ([]schema.PageData, error) {
	tag := tagStatus(batchID)
	if v, ok := c.cache.Get(tag); ok {
		return v.([]schema.PageData), nil
	}

	var resp schema.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(batchID), nil, &resp, true); err != nil {
		return nil, err
	}
	c.cache.Put(tag, resp.Pages)
	return resp.Pages, nil
}

// FetchBatchResult reads the finished pages of a batch, cached under the
// batch's result tag.
func (c *Client) FetchBatchResult(ctx context.Context, batchID string) ([]schema.PageData, error) {
	tag := tagResult(batchID)
	if v, ok := c.cache.Get(tag); ok {
		return v.([]schema.PageData), nil
	}

	var resp schema.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/result/"+url.PathEscape(batchID), nil, &resp, true); err != nil {
		return nil, err
	}
	c.cache.Put(tag, resp.Pages)
	return resp.Pages, nil
}

// FetchUserBatches lists the batches belonging to pseudo, cached under the
// user's batch-list tag (invalidated by SubmitBatch).
func (c *Client) FetchUserBatches(ctx context.Context, pseudo string) ([]schema.RemoteBatch, error) {
	tag := tagBatches(pseudo)
	if v, ok := c.cache.Get(tag); ok {
		return v.([]schema.RemoteBatch), nil
	}

	var resp schema.UserBatchesResponse
	if err := c.do(ctx, http.MethodGet, "/user/"+url.PathEscape(pseudo)+"/batches", nil, &resp, false); err != nil {
		return nil, err
	}
	c.cache.Put(tag, resp.Batches)
	return resp.Batches, nil
}

// FetchUserTranslatedPages lists every translated page of the current
// user, newest first.
func (c *Client) FetchUserTranslatedPages(ctx context.Context) ([]schema.TranslatedPage, error) {
	pseudo := c.session.Pseudo()
	if pseudo == "" {
		return nil, ErrNotLoggedIn
	}

	tag := tagUserPages(pseudo)
	if v, ok := c.cache.Get(tag); ok {
		return v.([]schema.TranslatedPage), nil
	}

	var resp schema.TranslatedPagesResponse
	if err := c.do(ctx, http.MethodGet, "/user/"+url.PathEscape(pseudo)+"/translated-pages", nil, &resp, false); err != nil {
		return nil, err
	}
	c.cache.Put(tag, resp.TranslatedPages)
	return resp.TranslatedPages, nil
}

// FetchBatchTranslatedPages lists the translated pages of one batch.
func (c *Client) FetchBatchTranslatedPages(ctx context.Context, batchID string) ([]schema.TranslatedPage, error) {
	tag := tagBatchPages(batchID)
	if v, ok := c.cache.Get(tag); ok {
		return v.([]schema.TranslatedPage), nil
	}

	var resp schema.TranslatedPagesResponse
	if err := c.do(ctx, http.MethodGet, "/batch/"+url.PathEscape(batchID)+"/translated-pages", nil, &resp, true); err != nil {
		return nil, err
	}
	c.cache.Put(tag, resp.TranslatedPages)
	return resp.TranslatedPages, nil
}

// InvalidateBatch drops every cached query that targets the batch, so the
// next reads refetch.
func (c *Client) InvalidateBatch(batchID string) {
	c.cache.Invalidate(tagStatus(batchID), tagResult(batchID), tagBatchPages(batchID))
}

// InvalidateAll drops the whole cache. Live-update hints carry no entity
// information, so this is what a hint triggers.
func (c *Client) InvalidateAll() {
	c.cache.InvalidateAll()
}

// ReconcileBatch rebuilds the advisory local view of a backend batch from
// its authoritative page documents. The remote copy replaces whatever was
// held locally; the derived status rule is the same one the lifecycle
// engine applies.
func ReconcileBatch(batchID string, pages []schema.PageData, createdAt time.Time) *schema.Batch {
	b := &schema.Batch{
		ID:        batchID,
		Pages:     make([]*schema.Page, 0, len(pages)),
		CreatedAt: createdAt,
	}
	for _, pd := range pages {
		b.Pages = append(b.Pages, pd.ToPage())
	}
	b.Recompute(time.Now())
	return b
}

// do performs one request/response round trip.
//
// Transport failures wrap ErrNetwork; error statuses become *APIError with
// the backend's detail message when one is present. withIdentity requests
// require a logged-in session and send the identity header.
func (c *Client) do(ctx context.Context, method, path string, body, out any, withIdentity bool) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if withIdentity {
		pseudo := c.session.Pseudo()
		if pseudo == "" {
			return ErrNotLoggedIn
		}
		req.Header.Set(headerPseudo, pseudo)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorDetail(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// errorDetail extracts the backend's {"detail": ...} message, falling back
// to the raw body.
func errorDetail(data []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(data))
}
