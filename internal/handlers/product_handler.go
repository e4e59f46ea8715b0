package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/labelscan/portal/internal/config"
	"github.com/labelscan/portal/internal/models"
	"github.com/labelscan/portal/internal/observability"
	"github.com/labelscan/portal/internal/services"
)

const (
	// multipart parts beyond this are spooled to disk
	uploadMemory = 32 << 20
	// oversized files must still arrive to be reported, so the body cap is
	// well above the per-file limit
	uploadBodyFactor = 4
)

// ProductHandler handles the product form and its image uploader
type ProductHandler struct {
	limits   config.Upload
	previews *services.PreviewService
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(limits config.Upload, previews *services.PreviewService) *ProductHandler {
	return &ProductHandler{limits: limits, previews: previews}
}

type addImagesResponse struct {
	Accepted int                    `json:"accepted"`
	Messages []string               `json:"messages,omitempty"`
	Images   []models.UploadedImage `json:"images"`
}

type submitFormResponse struct {
	Error  string                  `json:"error"`
	Fields models.ValidationErrors `json:"fields"`
}

// AddImages accepts files posted under the "images" field
// @Summary Add label images
// @Tags product
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} addImagesResponse
// @Router /images [post]
func (h *ProductHandler) AddImages(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}

	limit := int64(h.limits.MaxImages+1)*h.limits.MaxFileSizeBytes()*uploadBodyFactor + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		fail(w, r, http.StatusBadRequest, "Invalid upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[string(models.FieldImages)]
	files := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, uploadFile(fh))
	}

	res := ws.AddFiles(files)
	observability.WithContext(r.Context()).Debugf("Upload: %d accepted, %d oversized, %d over limit, %d skipped",
		res.Accepted, res.Oversized, res.OverLimit, res.Skipped)

	finish(w, r, http.StatusOK, addImagesResponse{
		Accepted: res.Accepted,
		Messages: res.Messages,
		Images:   ws.View().Images,
	})
}

func uploadFile(fh *multipart.FileHeader) services.UploadFile {
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if f, err := fh.Open(); err == nil {
			head := make([]byte, 512)
			n, _ := io.ReadFull(f, head)
			f.Close()
			contentType = services.SniffContentType(contentType, head[:n])
		}
	}
	return services.UploadFile{
		Name:        fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// RemoveImage removes an uploaded image by position
// @Summary Remove a label image
// @Tags product
// @Param index path int true "Image index"
// @Success 200 {object} addImagesResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /images/{index}/remove [post]
func (h *ProductHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "Invalid image index")
		return
	}
	if err := ws.RemoveFile(index); err != nil {
		if errors.Is(err, models.ErrImageIndexOutOfRange) {
			fail(w, r, http.StatusNotFound, "Image not found")
			return
		}
		fail(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	finish(w, r, http.StatusOK, addImagesResponse{Images: ws.View().Images})
}

// Preview serves a generated preview
// @Summary Image preview
// @Tags product
// @Param ref path string true "Preview reference"
// @Produce image/jpeg
// @Router /previews/{ref} [get]
func (h *ProductHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.previews == nil {
		http.NotFound(w, r)
		return
	}
	p, ok := h.previews.Get(chi.URLParam(r, "ref"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", p.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(p.Data)
}

// UpdateField applies a live edit of one form field
// @Summary Edit a form field
// @Tags product
// @Accept json
// @Produce json
// @Param request body models.FieldUpdateRequest true "Field edit"
// @Success 200 {object} models.FieldUpdateResponse
// @Router /product/field [post]
func (h *ProductHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}

	var req models.FieldUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	respondJSON(w, http.StatusOK, ws.SetField(req.Field, req.Value))
}

// formFields are read from a full form post
var formFields = []models.Field{
	models.FieldBrandName,
	models.FieldProductClass,
	models.FieldAlcoholContent,
	models.FieldNetContents,
	models.FieldNetContentsUnit,
}

// Submit validates the form and opens the review
// @Summary Submit the product form
// @Tags product
// @Produce json
// @Success 200 {object} models.SubmissionSnapshot
// @Failure 400 {object} submitFormResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /product [post]
func (h *ProductHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}

	var err error
	if jsonBody(r) {
		err = ws.SubmitForm()
	} else {
		if perr := r.ParseForm(); perr != nil {
			fail(w, r, http.StatusBadRequest, "Invalid form")
			return
		}
		posted := make(map[models.Field]string, len(formFields))
		for _, field := range formFields {
			if values, ok := r.PostForm[string(field)]; ok && len(values) > 0 {
				posted[field] = values[0]
			}
		}
		err = ws.SubmitValues(posted)
	}

	switch {
	case err == nil:
		finish(w, r, http.StatusOK, ws.Flow().Snapshot())
	case errors.Is(err, models.ErrInvalidForm):
		if wantsJSON(r) {
			respondJSON(w, http.StatusBadRequest, submitFormResponse{Error: err.Error(), Fields: ws.View().Errors})
			return
		}
		redirectHome(w, r)
	case errors.Is(err, models.ErrSubmissionActive):
		fail(w, r, http.StatusConflict, err.Error())
	default:
		fail(w, r, http.StatusInternalServerError, err.Error())
	}
}
