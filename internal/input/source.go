// Package input turns a job request into a local document path.
package input

import (
	"github.com/tendant/simple-ocr-worker/pkg/schema"
)

// SourceKind tags which request key a Source was selected from.
type SourceKind int

const (
	ByPath SourceKind = iota + 1
	ByURL
	ByBase64
	ByContent
)

func (k SourceKind) String() string {
	switch k {
	case ByPath:
		return "pdf_path"
	case ByURL:
		return "pdf_url"
	case ByBase64:
		return "pdf_base64"
	case ByContent:
		return "content_id"
	default:
		return "unknown"
	}
}

// Source is the single input a job acts on.
type Source struct {
	Kind  SourceKind
	Value string
}

// Select picks the highest-priority source key present in req:
// pdf_path, then pdf_url, then pdf_base64, then content_id.
func Select(req schema.JobRequest) (Source, error) {
	switch {
	case req.PDFPath != nil:
		return Source{Kind: ByPath, Value: *req.PDFPath}, nil
	case req.PDFURL != nil:
		return Source{Kind: ByURL, Value: *req.PDFURL}, nil
	case req.PDFBase64 != nil:
		return Source{Kind: ByBase64, Value: *req.PDFBase64}, nil
	case req.ContentID != nil:
		return Source{Kind: ByContent, Value: *req.ContentID}, nil
	}
	return Source{}, InputError("no PDF input provided; supply one of pdf_path, pdf_url, pdf_base64 or content_id", nil)
}
