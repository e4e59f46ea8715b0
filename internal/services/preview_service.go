package services

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/jdeng/goheif"
	"github.com/rwcarlsen/goexif/exif"
)

// DefaultPreviewDim is the longest edge of a generated preview
const DefaultPreviewDim = 320

// Preview is an in-memory rendition of an uploaded image
type Preview struct {
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// PreviewService generates image previews and keeps them addressable by an
// opaque reference until released.
type PreviewService struct {
	mu       sync.RWMutex
	maxDim   int
	quality  int
	previews map[string]Preview
}

// NewPreviewService creates a PreviewService. maxDim <= 0 uses DefaultPreviewDim.
func NewPreviewService(maxDim int) *PreviewService {
	if maxDim <= 0 {
		maxDim = DefaultPreviewDim
	}
	return &PreviewService{
		maxDim:   maxDim,
		quality:  80,
		previews: make(map[string]Preview),
	}
}

// Put stores a preview for data and returns its reference. When no thumbnail
// can be built the original bytes are kept as the preview.
func (s *PreviewService) Put(data []byte, contentType string) string {
	p, err := s.Generate(data)
	if err != nil {
		p = Preview{ContentType: contentType, Data: data}
	}

	ref := uuid.New().String()
	s.mu.Lock()
	s.previews[ref] = p
	s.mu.Unlock()
	return ref
}

// Get returns the preview stored under ref
func (s *PreviewService) Get(ref string) (Preview, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.previews[ref]
	return p, ok
}

// Release drops a preview. Unknown references are ignored.
func (s *PreviewService) Release(ref string) {
	if ref == "" {
		return
	}
	s.mu.Lock()
	delete(s.previews, ref)
	s.mu.Unlock()
}

// Len returns the number of held previews
func (s *PreviewService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.previews)
}

// Generate builds an oriented JPEG thumbnail no larger than maxDim on its
// longest edge.
func (s *PreviewService) Generate(data []byte) (Preview, error) {
	img, err := decodeImage(data)
	if err != nil {
		return Preview{}, err
	}

	img = applyOrientation(img, readOrientation(data))
	img = imaging.Fit(img, s.maxDim, s.maxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return Preview{}, fmt.Errorf("failed to encode preview: %w", err)
	}

	bounds := img.Bounds()
	return Preview{
		ContentType: "image/jpeg",
		Data:        buf.Bytes(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}

// decodeImage decodes the registered formats, then tries HEIC
func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	if !looksLikeHEIC(data) {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	img, err = goheif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode HEIC image: %w", err)
	}
	return img, nil
}

// looksLikeHEIC checks for an ISO BMFF ftyp box with a HEIF brand
func looksLikeHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "heim", "heis", "mif1", "msf1":
		return true
	}
	return false
}

// readOrientation returns the EXIF orientation tag, 1 when absent
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// applyOrientation corrects image orientation based on EXIF data
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		// Transpose
		return imaging.Rotate270(imaging.FlipH(img))
	case 6:
		// Rotate 90 CW
		return imaging.Rotate270(img)
	case 7:
		// Transverse
		return imaging.Rotate90(imaging.FlipH(img))
	case 8:
		// Rotate 90 CCW
		return imaging.Rotate90(img)
	default:
		return img
	}
}
