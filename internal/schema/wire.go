package schema

import "time"

// Wire types for the translation backend's JSON surface. Field names match
// what the backend emits (snake_case documents keyed by server-assigned
// ids) and are kept separate from the entity model so backend changes stay
// at this boundary.

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Pseudo string `json:"pseudo"`
}

// LoginResponse is returned by POST /auth/login.
type LoginResponse struct {
	Pseudo  string `json:"pseudo"`
	Message string `json:"message"`
}

// PageUpload is one page in an upload-batch request.
type PageUpload struct {
	Filename    string `json:"filename"`
	ImageBase64 string `json:"image_base64"`
}

// UploadBatchRequest is the body of POST /upload-batch.
type UploadBatchRequest struct {
	Pages []PageUpload `json:"pages"`
}

// UploadBatchResponse is returned by POST /upload-batch.
type UploadBatchResponse struct {
	BatchID string `json:"batchId"`
}

// PageData is the backend's representation of a page, as returned by the
// status and result endpoints.
type PageData struct {
	PageID        string     `json:"page_id"`
	Filename      string     `json:"filename"`
	Status        PageStatus `json:"status"`
	OriginalURL   string     `json:"original_url"`
	TranslatedURL string     `json:"translated_url,omitempty"`
}

// ToPage maps the wire representation to the local entity model. Remote
// pages reference server-hosted images, never local blobs.
func (pd PageData) ToPage() *Page {
	return &Page{
		ID:            pd.PageID,
		Filename:      pd.Filename,
		Status:        pd.Status,
		OriginalRef:   pd.OriginalURL,
		TranslatedRef: pd.TranslatedURL,
	}
}

// StatusResponse is returned by GET /status/{batchId} and
// GET /result/{batchId}.
type StatusResponse struct {
	Pages []PageData `json:"pages"`
}

// RemoteBatch is the backend's batch document as returned by
// GET /user/{pseudo}/batches.
type RemoteBatch struct {
	ID        string      `json:"_id"`
	UserID    string      `json:"user_id"`
	PageIDs   []string    `json:"pages_ids"`
	Pages     []PageData  `json:"pages"`
	CreatedAt time.Time   `json:"created_at"`
	Status    BatchStatus `json:"status"`
}

// UserBatchesResponse is returned by GET /user/{pseudo}/batches.
type UserBatchesResponse struct {
	Batches []RemoteBatch `json:"batches"`
}

// TranslatedPage is a finished page document from the translated-pages
// endpoints.
type TranslatedPage struct {
	ID                     string    `json:"_id"`
	PageID                 string    `json:"page_id"`
	UserID                 string    `json:"user_id"`
	BatchID                string    `json:"batch_id"`
	Filename               string    `json:"filename"`
	OriginalURL            string    `json:"original_url"`
	TranslatedURL          string    `json:"translated_url"`
	TranslationCompletedAt time.Time `json:"translation_completed_at"`
	ProcessingTimeSeconds  float64   `json:"processing_time_seconds"`
}

// TranslatedPagesResponse is returned by the user- and batch-scoped
// translated-pages endpoints.
type TranslatedPagesResponse struct {
	TranslatedPages []TranslatedPage `json:"translated_pages"`
}
