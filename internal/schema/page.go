// Package schema provides the batch/page entity model shared by the
// lifecycle engine, the durable store, and the remote client.
package schema

import (
	"fmt"
	"strings"
)

// PageStatus is the processing state of a single page.
//
// Statuses advance monotonically (pending -> uploading -> processing -> done)
// except for StatusError, which is terminal but kept visible so a failed page
// stays in the batch.
type PageStatus string

const (
	// StatusPending indicates the page has been accepted but not started.
	StatusPending PageStatus = "pending"
	// StatusUploading indicates the page bytes are in transit to the backend.
	StatusUploading PageStatus = "uploading"
	// StatusProcessing indicates detection/OCR/translation is running.
	StatusProcessing PageStatus = "processing"
	// StatusDone indicates translation finished and artifacts are available.
	StatusDone PageStatus = "done"
	// StatusError indicates processing failed. Error pages never count
	// toward batch completion.
	StatusError PageStatus = "error"
)

// Valid reports whether the status is one of the known values.
func (s PageStatus) Valid() bool {
	switch s {
	case StatusPending, StatusUploading, StatusProcessing, StatusDone, StatusError:
		return true
	}
	return false
}

// Page is one image submitted for translation within a batch.
type Page struct {
	// ID is unique within the owning batch (page_1, page_2, ...).
	ID       string     `json:"id"`
	Filename string     `json:"filename"`
	Status   PageStatus `json:"status"`

	// OriginalRef locates the source image: either a local blob reference
	// (blob:...) or a remote URL.
	OriginalRef string `json:"original_ref"`

	// TranslatedRef locates the translated image. Present only once the
	// page reaches done.
	TranslatedRef string `json:"translated_ref,omitempty"`

	// DetectedBubbleCount is meaningful only once processing has started.
	DetectedBubbleCount int `json:"detected_bubble_count"`

	// TranslatedTexts holds the translated strings in reading order.
	// Empty until done.
	TranslatedTexts []string `json:"translated_texts,omitempty"`

	// ProcessingTimeSeconds is set once, at completion.
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

// Validate checks the page's field values and the translation-artifact
// invariant: no translated ref or texts may exist before processing starts.
func (p *Page) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !p.Status.Valid() {
		return fmt.Errorf("unknown status %q", p.Status)
	}
	if p.DetectedBubbleCount < 0 {
		return fmt.Errorf("detected_bubble_count must not be negative (got %d)", p.DetectedBubbleCount)
	}
	if p.ProcessingTimeSeconds < 0 {
		return fmt.Errorf("processing_time_seconds must not be negative (got %v)", p.ProcessingTimeSeconds)
	}
	if p.Status == StatusPending || p.Status == StatusUploading {
		if p.TranslatedRef != "" {
			return fmt.Errorf("page %s: translated_ref set while status is %s", p.ID, p.Status)
		}
		if len(p.TranslatedTexts) > 0 {
			return fmt.Errorf("page %s: translated_texts set while status is %s", p.ID, p.Status)
		}
	}
	return nil
}

// IsLocalRef reports whether ref points at locally-held file data rather
// than a remote URL. Local refs own a resource handle that must be released
// when the page is discarded.
func IsLocalRef(ref string) bool {
	return strings.HasPrefix(ref, "blob:")
}
