package client

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/talentsift/research-sdk-go/types"
)

const (
	maxCVBytes             = 10 << 20
	maxJobDescriptionBytes = 5 << 20
	minJobDescriptionChars = 100
)

var allowedDocumentExts = map[string]bool{
	".txt":  true,
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

// Document is an uploaded file: the CV, or a job description attachment.
type Document struct {
	Name    string
	Content []byte
}

// SubmitRequest carries everything needed to start a research run. Exactly
// one of JobDescription and JobDescriptionFile must be provided.
type SubmitRequest struct {
	LinkedInURL        string
	CV                 Document
	JobDescription     string
	JobDescriptionFile *Document

	// OnUploadProgress, when set, is called as the multipart body is
	// streamed. It is advisory and never feeds into run state.
	OnUploadProgress func(sent, total int64)
}

// Validate applies the server's acceptance rules before any bytes leave the
// process. Violations are validation errors and are never retried.
func (r SubmitRequest) Validate() error {
	if !strings.Contains(strings.ToLower(r.LinkedInURL), "linkedin.com") {
		return &types.RunError{Kind: types.ErrorValidation, Message: "linkedin_url must be a linkedin.com profile URL"}
	}
	if len(r.CV.Content) == 0 {
		return &types.RunError{Kind: types.ErrorValidation, Message: "cv document is required"}
	}
	if err := checkDocument(r.CV, maxCVBytes, "cv"); err != nil {
		return err
	}

	hasText := strings.TrimSpace(r.JobDescription) != ""
	hasFile := r.JobDescriptionFile != nil && len(r.JobDescriptionFile.Content) > 0
	switch {
	case !hasText && !hasFile:
		return &types.RunError{Kind: types.ErrorValidation, Message: "job description text or file is required"}
	case hasText && hasFile:
		return &types.RunError{Kind: types.ErrorValidation, Message: "provide job description text or a file, not both"}
	case hasText:
		if len(strings.TrimSpace(r.JobDescription)) < minJobDescriptionChars {
			return &types.RunError{
				Kind:    types.ErrorValidation,
				Message: fmt.Sprintf("job description must be at least %d characters", minJobDescriptionChars),
			}
		}
	default:
		if err := checkDocument(*r.JobDescriptionFile, maxJobDescriptionBytes, "job description"); err != nil {
			return err
		}
	}
	return nil
}

func checkDocument(doc Document, maxBytes int, label string) error {
	if len(doc.Content) > maxBytes {
		return &types.RunError{
			Kind:    types.ErrorValidation,
			Message: fmt.Sprintf("%s file exceeds %dMB limit", label, maxBytes>>20),
		}
	}
	ext := strings.ToLower(filepath.Ext(doc.Name))
	if !allowedDocumentExts[ext] {
		return &types.RunError{
			Kind:    types.ErrorValidation,
			Message: fmt.Sprintf("%s file type %q is not supported (txt, pdf, doc, docx)", label, ext),
		}
	}
	return nil
}
