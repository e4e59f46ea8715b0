package services

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labelscan/portal/internal/config"
	"github.com/labelscan/portal/internal/models"
	"github.com/labelscan/portal/internal/observability"
)

// UploadFile is a file offered to the uploader. Open is only called for
// files that pass the type and size checks.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// BytesFile wraps in-memory content as an UploadFile
func BytesFile(name, contentType string, content []byte) UploadFile {
	return UploadFile{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

// AddResult reports what one AddFiles call did
type AddResult struct {
	Accepted  int
	Oversized int
	OverLimit int
	Skipped   int
	Messages  []string
}

// ImageUploader holds the ordered, capped list of accepted label images
type ImageUploader struct {
	limits   config.Upload
	previews *PreviewService
	images   []models.UploadedImage
	message  string
	onChange func([]models.UploadedImage)
}

// NewImageUploader creates an uploader. previews may be nil to skip preview
// generation.
func NewImageUploader(limits config.Upload, previews *PreviewService) *ImageUploader {
	return &ImageUploader{limits: limits, previews: previews}
}

// OnChange registers fn to receive the accepted images after every change
func (u *ImageUploader) OnChange(fn func([]models.UploadedImage)) {
	u.onChange = fn
}

// AddFiles accepts image files up to the configured count and size limits.
// Non-image files are skipped without a message.
func (u *ImageUploader) AddFiles(files []UploadFile) AddResult {
	var res AddResult
	u.message = ""

	for _, f := range files {
		if !models.IsImageContentType(f.ContentType) {
			res.Skipped++
			continue
		}
		if f.Size > u.limits.MaxFileSizeBytes() {
			res.Oversized++
			continue
		}
		if len(u.images) >= u.limits.MaxImages {
			res.OverLimit++
			continue
		}

		content, err := readUpload(f, u.limits.MaxFileSizeBytes())
		if err != nil {
			observability.Warnf("Failed to read upload %q: %v", f.Name, err)
			res.Skipped++
			continue
		}
		if int64(len(content)) > u.limits.MaxFileSizeBytes() {
			res.Oversized++
			continue
		}

		img := models.UploadedImage{
			Name:        models.SanitizeFilename(f.Name),
			ContentType: f.ContentType,
			Size:        int64(len(content)),
			Content:     content,
		}
		if u.previews != nil {
			img.PreviewRef = u.previews.Put(content, f.ContentType)
		}
		u.images = append(u.images, img)
		res.Accepted++
	}

	if res.Oversized > 0 {
		res.Messages = append(res.Messages, fmt.Sprintf("Error: %d file(s) exceed the %dMB limit.", res.Oversized, u.limits.MaxFileSizeMB))
	}
	if res.OverLimit > 0 {
		res.Messages = append(res.Messages, fmt.Sprintf("Error: Maximum of %d images reached.", u.limits.MaxImages))
	}
	u.message = strings.Join(res.Messages, " ")

	if res.Accepted > 0 {
		u.notify()
	}
	return res
}

// readUpload reads at most limit+1 bytes so a lying Size is still caught
func readUpload(f UploadFile, limit int64) ([]byte, error) {
	if f.Open == nil {
		return nil, fmt.Errorf("no content")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, limit+1))
}

// RemoveFile removes the image at index and releases its preview
func (u *ImageUploader) RemoveFile(index int) error {
	if index < 0 || index >= len(u.images) {
		return models.ErrImageIndexOutOfRange
	}
	removed := u.images[index]
	u.images = append(u.images[:index:index], u.images[index+1:]...)
	if u.previews != nil {
		u.previews.Release(removed.PreviewRef)
	}
	u.message = ""
	u.notify()
	return nil
}

// Reset drops every image and releases all previews
func (u *ImageUploader) Reset() {
	if u.previews != nil {
		for _, img := range u.images {
			u.previews.Release(img.PreviewRef)
		}
	}
	u.images = nil
	u.message = ""
	u.notify()
}

// Images returns a copy of the accepted images in order
func (u *ImageUploader) Images() []models.UploadedImage {
	out := make([]models.UploadedImage, len(u.images))
	copy(out, u.images)
	return out
}

// Count returns the number of accepted images
func (u *ImageUploader) Count() int {
	return len(u.images)
}

// Max returns the configured image limit
func (u *ImageUploader) Max() int {
	return u.limits.MaxImages
}

// Full reports whether no more images can be accepted
func (u *ImageUploader) Full() bool {
	return len(u.images) >= u.limits.MaxImages
}

// Message returns the error from the last add, if any
func (u *ImageUploader) Message() string {
	return u.message
}

func (u *ImageUploader) notify() {
	if u.onChange != nil {
		u.onChange(u.Images())
	}
}

// SniffContentType returns declared when set, otherwise detects the type
// from the first bytes of content.
func SniffContentType(declared string, head []byte) string {
	if declared = strings.TrimSpace(declared); declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(head)
}
