package models

import (
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// Unit is the unit of a product's net contents
type Unit string

const (
	UnitMilliliter Unit = "ml"
	UnitFluidOunce Unit = "fl oz"
	UnitLiter      Unit = "L"
)

// DefaultUnit is preselected on a fresh form
const DefaultUnit = UnitMilliliter

// MaxAlcoholValue is the upper bound of alcohol content by volume
const MaxAlcoholValue = 100.0

// Units lists the selectable units in display order
var Units = []Unit{UnitMilliliter, UnitFluidOunce, UnitLiter}

// ParseUnit returns the unit matching s exactly
func ParseUnit(s string) (Unit, bool) {
	for _, u := range Units {
		if string(u) == s {
			return u, true
		}
	}
	return "", false
}

// Field names a product form input
type Field string

const (
	FieldBrandName       Field = "brandName"
	FieldProductClass    Field = "productClass"
	FieldAlcoholContent  Field = "alcoholContent"
	FieldNetContents     Field = "netContents"
	FieldNetContentsUnit Field = "netContentsUnit"
	FieldImages          Field = "images"
)

// FormState is the editable state of the product form.
// Numeric fields are kept as typed text until submission.
type FormState struct {
	BrandName       string `json:"brandName"`
	ProductClass    string `json:"productClass"`
	AlcoholContent  string `json:"alcoholContent"`
	NetContents     string `json:"netContents"`
	NetContentsUnit Unit   `json:"netContentsUnit"`
}

// DefaultFormState returns an empty form
func DefaultFormState() FormState {
	return FormState{NetContentsUnit: DefaultUnit}
}

// ValidationErrors marks invalid fields
type ValidationErrors map[Field]bool

// Any reports whether at least one field is marked invalid
func (v ValidationErrors) Any() bool {
	for _, bad := range v {
		if bad {
			return true
		}
	}
	return false
}

// ProductPayload is the validated submission sent to the verification service
type ProductPayload struct {
	BrandName       string  `json:"brandName"`
	ProductClass    string  `json:"productClass"`
	AlcoholContent  float64 `json:"alcoholContent"`
	NetContents     float64 `json:"netContents"`
	NetContentsUnit Unit    `json:"netContentsUnit"`
}

// FormValues renders the payload as multipart text fields
func (p ProductPayload) FormValues() [][2]string {
	return [][2]string{
		{string(FieldBrandName), p.BrandName},
		{string(FieldProductClass), p.ProductClass},
		{string(FieldAlcoholContent), strconv.FormatFloat(p.AlcoholContent, 'f', -1, 64)},
		{string(FieldNetContents), strconv.FormatFloat(p.NetContents, 'f', -1, 64)},
		{string(FieldNetContentsUnit), string(p.NetContentsUnit)},
	}
}

var netContentsPattern = regexp.MustCompile(`^\d+(\.\d{0,2})?$`)

// NetContentsInputAllowed reports whether s may be typed into the net contents field
func NetContentsInputAllowed(s string) bool {
	return s == "" || netContentsPattern.MatchString(s)
}

// ParseNumber parses a finite decimal number, trimming surrounding space
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// AlcoholContentValid reports whether s is a number in [0, 100]
func AlcoholContentValid(s string) bool {
	f, ok := ParseNumber(s)
	return ok && f >= 0 && f <= MaxAlcoholValue
}

// NetContentsValid reports whether s is a number greater than zero
func NetContentsValid(s string) bool {
	f, ok := ParseNumber(s)
	return ok && f > 0
}

// RoundOneDecimal rounds the exact binary value of f to one decimal place,
// taking the value further from zero on a tie. 12.25 becomes 12.3 while 1.45,
// stored as 1.4499..., becomes 1.4.
func RoundOneDecimal(f float64) float64 {
	r := new(big.Rat)
	if math.IsNaN(f) || math.IsInf(f, 0) || r.SetFloat64(f) == nil {
		return f
	}
	neg := r.Sign() < 0
	r.Abs(r)
	r.Mul(r, big.NewRat(10, 1))
	r.Add(r, big.NewRat(1, 2))

	n := new(big.Int).Quo(r.Num(), r.Denom())
	out, _ := new(big.Rat).SetFrac(n, big.NewInt(10)).Float64()
	if neg {
		return -out
	}
	return out
}
