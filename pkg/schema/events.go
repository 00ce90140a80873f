// pkg/schema/events.go
package schema

// JobEvent is the message a host publishes to request one document job.
type JobEvent struct {
	ID    string     `json:"id"`
	Input JobRequest `json:"input"`
}

// JobRequest describes one document. Source keys are pointers so that key
// presence can be told apart from an empty value.
type JobRequest struct {
	PDFPath   *string `json:"pdf_path,omitempty"`
	PDFURL    *string `json:"pdf_url,omitempty"`
	PDFBase64 *string `json:"pdf_base64,omitempty"`
	ContentID *string `json:"content_id,omitempty"`
	Prompt    string  `json:"prompt,omitempty"`
	OutputDir string  `json:"output_dir,omitempty"`
}

type JobStatus string

const (
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
	StatusTimedOut  JobStatus = "timed_out"
)

type FailureType string

const (
	FailureTypeRetryable  FailureType = "retryable"
	FailureTypePermanent  FailureType = "permanent"
	FailureTypeValidation FailureType = "validation"
)

// Encoding values reported next to inlined text artifacts.
const (
	EncodingText   = "text"
	EncodingBase64 = "base64"
)

// Artifacts holds the pipeline outputs surfaced in a successful response.
type Artifacts struct {
	Markdown                  *string `json:"markdown,omitempty"`
	MarkdownEncoding          string  `json:"markdown_encoding,omitempty"`
	MarkdownPath              string  `json:"markdown_path,omitempty"`
	MarkdownMissing           string  `json:"markdown_missing,omitempty"`
	DetectionMarkdown         *string `json:"detection_markdown,omitempty"`
	DetectionMarkdownEncoding string  `json:"detection_markdown_encoding,omitempty"`
	DetectionMarkdownPath     string  `json:"detection_markdown_path,omitempty"`
	LayoutPDFPath             string  `json:"layout_pdf_path,omitempty"`
	LayoutPDFBase64           *string `json:"layout_pdf_base64,omitempty"`
	ImagesArchivePath         string  `json:"images_archive_path,omitempty"`
	ImagesPreviewPath         string  `json:"images_preview_path,omitempty"`
	// CollectWarnings lists artifacts that existed but could not be read or packaged.
	CollectWarnings []string `json:"collect_warnings,omitempty"`
}

// JobResponse is returned whenever the pipeline was actually invoked.
type JobResponse struct {
	JobID      string    `json:"job_id,omitempty"`
	Command    string    `json:"command"`
	ReturnCode int       `json:"return_code"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	Status     JobStatus `json:"status"`
	PageCount  int       `json:"page_count,omitempty"`
	DurationMs int64     `json:"duration_ms"`

	*Artifacts
}

// JobError reports a job that failed before or outside the pipeline run.
type JobError struct {
	Kind        string      `json:"kind"`
	Message     string      `json:"message"`
	StatusCode  int         `json:"status_code,omitempty"`
	FailureType FailureType `json:"failure_type"`
}

// JobOutcome is published for every job: exactly one of Response or Error is set.
type JobOutcome struct {
	JobID      string       `json:"job_id"`
	Response   *JobResponse `json:"response,omitempty"`
	Error      *JobError    `json:"error,omitempty"`
	HappenedAt int64        `json:"happened_at"`
}
