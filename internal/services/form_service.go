package services

import (
	"strings"

	"github.com/labelscan/portal/internal/models"
)

// AlcoholHint is the live warning shown for an out-of-range alcohol content
const AlcoholHint = "Must be between 0 and 100."

// ProductForm holds the editable product fields and their validation marks
type ProductForm struct {
	state    models.FormState
	errors   models.ValidationErrors
	feedback string
	warnings bool
}

// NewProductForm creates a form with default values. warnings enables the
// live alcohol content hint.
func NewProductForm(warnings bool) *ProductForm {
	return &ProductForm{
		state:    models.DefaultFormState(),
		errors:   models.ValidationErrors{},
		warnings: warnings,
	}
}

// SetField applies one edit and clears that field's error mark. Net contents
// input that is not digits with at most two decimals, and unknown units, are
// rejected without an error and leave the previous value in place.
func (f *ProductForm) SetField(field models.Field, value string) bool {
	switch field {
	case models.FieldBrandName:
		f.state.BrandName = value
	case models.FieldProductClass:
		f.state.ProductClass = value
	case models.FieldAlcoholContent:
		f.state.AlcoholContent = value
	case models.FieldNetContents:
		if !models.NetContentsInputAllowed(value) {
			return false
		}
		f.state.NetContents = value
	case models.FieldNetContentsUnit:
		unit, ok := models.ParseUnit(value)
		if !ok {
			return false
		}
		f.state.NetContentsUnit = unit
	default:
		return false
	}
	delete(f.errors, field)
	return true
}

// MarkInvalid marks fields whose posted values were rejected
func (f *ProductForm) MarkInvalid(fields ...models.Field) {
	if len(fields) == 0 {
		return
	}
	for _, field := range fields {
		f.errors[field] = true
	}
	f.feedback = models.ErrInvalidForm.Message
}

// ClearImageError drops the image mark once an image has been accepted
func (f *ProductForm) ClearImageError(count int) {
	if count > 0 {
		delete(f.errors, models.FieldImages)
	}
}

// Hint returns the live warning for field, if any
func (f *ProductForm) Hint(field models.Field) string {
	if field != models.FieldAlcoholContent || !f.warnings {
		return ""
	}
	v := strings.TrimSpace(f.state.AlcoholContent)
	if v == "" || models.AlcoholContentValid(v) {
		return ""
	}
	return AlcoholHint
}

// State returns the current field values
func (f *ProductForm) State() models.FormState {
	return f.state
}

// Errors returns a copy of the current validation marks
func (f *ProductForm) Errors() models.ValidationErrors {
	out := make(models.ValidationErrors, len(f.errors))
	for k, v := range f.errors {
		out[k] = v
	}
	return out
}

// Invalid reports whether field is marked
func (f *ProductForm) Invalid(field models.Field) bool {
	return f.errors[field]
}

// Feedback returns the message from the last rejected submit
func (f *ProductForm) Feedback() string {
	return f.feedback
}

// Submit validates every field at once. On success it returns the payload
// with numbers coerced and alcohol content rounded to one decimal place.
func (f *ProductForm) Submit(imageCount int) (*models.ProductPayload, error) {
	errs := models.ValidationErrors{}
	if strings.TrimSpace(f.state.BrandName) == "" {
		errs[models.FieldBrandName] = true
	}
	if strings.TrimSpace(f.state.ProductClass) == "" {
		errs[models.FieldProductClass] = true
	}
	if !models.AlcoholContentValid(f.state.AlcoholContent) {
		errs[models.FieldAlcoholContent] = true
	}
	if !models.NetContentsValid(f.state.NetContents) {
		errs[models.FieldNetContents] = true
	}
	if imageCount < 1 {
		errs[models.FieldImages] = true
	}

	f.errors = errs
	if errs.Any() {
		f.feedback = models.ErrInvalidForm.Message
		return nil, models.ErrInvalidForm
	}
	f.feedback = ""

	alcohol, _ := models.ParseNumber(f.state.AlcoholContent)
	net, _ := models.ParseNumber(f.state.NetContents)
	return &models.ProductPayload{
		BrandName:       f.state.BrandName,
		ProductClass:    f.state.ProductClass,
		AlcoholContent:  models.RoundOneDecimal(alcohol),
		NetContents:     net,
		NetContentsUnit: f.state.NetContentsUnit,
	}, nil
}

// Reset restores default values and clears all marks
func (f *ProductForm) Reset() {
	f.state = models.DefaultFormState()
	f.errors = models.ValidationErrors{}
	f.feedback = ""
}
