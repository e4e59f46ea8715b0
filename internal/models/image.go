package models

import (
	"path/filepath"
	"strings"
)

// UploadedImage is an accepted label image held by the uploader
type UploadedImage struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Content     []byte `json:"-"`
	PreviewRef  string `json:"previewRef,omitempty"`
}

// IsImageContentType reports whether ct names an image media type
func IsImageContentType(ct string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "image/")
}

// SanitizeFilename removes path components and invalid characters
func SanitizeFilename(filename string) string {
	// Normalise Windows separators so Base strips them too
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))

	replacer := strings.NewReplacer(
		"..", "",
		"/", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	name = replacer.Replace(name)

	const maxLength = 200
	if len(name) > maxLength {
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		if len(base) > maxLength-len(ext) {
			base = base[:maxLength-len(ext)]
		}
		name = base + ext
	}
	if name == "" || name == "." {
		name = "image"
	}
	return name
}

// Upload errors
var (
	ErrImageIndexOutOfRange = UploadError{"image index out of range"}
	ErrPreviewNotFound      = UploadError{"preview not found"}
)

type UploadError struct {
	Message string
}

func (e UploadError) Error() string {
	return e.Message
}
