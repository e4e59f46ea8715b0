package services

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/labelscan/portal/internal/models"
)

// Check is one labelled verification outcome
type Check struct {
	Key    string
	Label  string
	Passed bool
}

// Status renders the outcome the way the results view shows it
func (c Check) Status() string {
	if c.Passed {
		return "✓ Found"
	}
	return "✗ Not Found"
}

// resultChecks are displayed in this order
var resultChecks = []struct {
	key   string
	label string
}{
	{"brand_name", "Brand Name"},
	{"product_class", "Product Class"},
	{"alcohol_content", "Alcohol Content"},
	{"net_contents", "Net Contents"},
	{"gov_warn", "Government Warning"},
}

// ResultImage is one page of the results image viewer
type ResultImage struct {
	ContentType string
	Data        []byte
}

// DataURL encodes the image for inline display
func (i ResultImage) DataURL() string {
	return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// ResultsView presents a completed verification result with a circular image
// pager. It never touches the network.
type ResultsView struct {
	result  models.VerificationResult
	payload *models.ProductPayload
	images  []ResultImage
	index   int
}

// NewResultsView builds the view for result. Images come from the result's
// data URLs; when it carries none, fallback is shown instead.
func NewResultsView(result *models.VerificationResult, payload *models.ProductPayload, fallback []ResultImage) *ResultsView {
	v := &ResultsView{payload: payload}
	if result != nil {
		v.result = *result
	}
	for _, raw := range v.result.Images {
		ct, data, err := models.DecodeDataURL(raw)
		if err != nil {
			continue
		}
		v.images = append(v.images, ResultImage{ContentType: ct, Data: data})
	}
	if len(v.images) == 0 {
		v.images = append(v.images, fallback...)
	}
	return v
}

// Result returns the underlying verification result
func (v *ResultsView) Result() models.VerificationResult {
	return v.result
}

// Payload returns the submitted payload, if known
func (v *ResultsView) Payload() *models.ProductPayload {
	return v.payload
}

// Checks returns the verification outcomes in display order
func (v *ResultsView) Checks() []Check {
	checks := make([]Check, 0, len(resultChecks))
	for _, c := range resultChecks {
		checks = append(checks, Check{Key: c.key, Label: c.label, Passed: v.result.Passed(c.key)})
	}
	return checks
}

// ImageCount returns the number of pages
func (v *ResultsView) ImageCount() int {
	return len(v.images)
}

// Current returns the image on the current page
func (v *ResultsView) Current() (ResultImage, bool) {
	if len(v.images) == 0 {
		return ResultImage{}, false
	}
	return v.images[v.index], true
}

// Next advances the pager, wrapping to the first image
func (v *ResultsView) Next() {
	if n := len(v.images); n > 0 {
		v.index = (v.index + 1) % n
	}
}

// Prev moves the pager back, wrapping to the last image
func (v *ResultsView) Prev() {
	if n := len(v.images); n > 0 {
		v.index = (v.index - 1 + n) % n
	}
}

// Position returns the 1-based page and the page count
func (v *ResultsView) Position() (int, int) {
	if len(v.images) == 0 {
		return 0, 0
	}
	return v.index + 1, len(v.images)
}

// ResultsPage is a point-in-time rendering of the view
type ResultsPage struct {
	Result  models.VerificationResult
	Payload *models.ProductPayload
	Checks  []Check
	Image   *ResultImage
	Pos     int
	Total   int
}

// Page captures the current page for rendering
func (v *ResultsView) Page() *ResultsPage {
	p := &ResultsPage{
		Result:  v.result,
		Payload: v.payload,
		Checks:  v.Checks(),
	}
	if img, ok := v.Current(); ok {
		p.Image = &img
	}
	p.Pos, p.Total = v.Position()
	return p
}

// Render writes a plain-text rendering of the view
func (v *ResultsView) Render(w io.Writer) error {
	var b strings.Builder
	b.WriteString("Results\n")
	if v.payload != nil {
		fmt.Fprintf(&b, "  %-20s %s\n", "Submitted brand:", v.payload.BrandName)
	}
	if v.result.User != "" {
		fmt.Fprintf(&b, "  %-20s %s\n", "Verified for:", v.result.User)
	}
	for _, c := range v.Checks() {
		fmt.Fprintf(&b, "  %-20s %s\n", c.Label+":", c.Status())
	}
	if pos, total := v.Position(); total > 0 {
		fmt.Fprintf(&b, "  %-20s %d file(s), showing %d / %d\n", "Images:", total, pos, total)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
