package storage

import (
	"fmt"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"
)

// UploadPolicy decides which uploaded files are accepted as project artifacts.
type UploadPolicy struct {
	AllowedExtensions []string
	AllowedMIMETypes  []string
	MaxBytes          int64
}

// PolicyError explains why an upload was refused. Its message is shown to the uploader.
type PolicyError struct {
	Message string
}

func (e *PolicyError) Error() string { return e.Message }

// Check validates a multipart file header against the policy
func (p UploadPolicy) Check(h *multipart.FileHeader) error {
	if h == nil || h.Size <= 0 {
		return &PolicyError{Message: "uploaded file is empty"}
	}
	if p.MaxBytes > 0 && h.Size > p.MaxBytes {
		return &PolicyError{Message: fmt.Sprintf("file too large (max %d bytes)", p.MaxBytes)}
	}

	ext := strings.ToLower(filepath.Ext(h.Filename))
	if !contains(p.AllowedExtensions, ext) {
		return &PolicyError{Message: fmt.Sprintf("only %s files are allowed", strings.Join(p.AllowedExtensions, ", "))}
	}

	if len(p.AllowedMIMETypes) > 0 {
		mediaType, _, err := mime.ParseMediaType(h.Header.Get("Content-Type"))
		if err != nil || !contains(p.AllowedMIMETypes, mediaType) {
			return &PolicyError{Message: fmt.Sprintf("unsupported file type, expected %s", strings.Join(p.AllowedMIMETypes, ", "))}
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}
