package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetContentsInputAllowed(t *testing.T) {
	allowed := []string{"", "0", "12", "12.", "12.5", "12.55", "750"}
	for _, s := range allowed {
		assert.True(t, NetContentsInputAllowed(s), "%q should be allowed", s)
	}

	rejected := []string{"12.555", "-1", "1e3", "abc", ".5", "1,5", " 12"}
	for _, s := range rejected {
		assert.False(t, NetContentsInputAllowed(s), "%q should be rejected", s)
	}
}

func TestAlcoholContentValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0", true},
		{"5.5", true},
		{"100", true},
		{" 40.0 ", true},
		{"", false},
		{"-0.1", false},
		{"100.01", false},
		{"abc", false},
		{"NaN", false},
		{"Inf", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AlcoholContentValid(tt.in), "input %q", tt.in)
	}
}

func TestNetContentsValid(t *testing.T) {
	assert.True(t, NetContentsValid("12"))
	assert.True(t, NetContentsValid("0.01"))
	assert.False(t, NetContentsValid("0"))
	assert.False(t, NetContentsValid("0.00"))
	assert.False(t, NetContentsValid("-5"))
	assert.False(t, NetContentsValid(""))
	assert.False(t, NetContentsValid("twelve"))
}

func TestRoundOneDecimal(t *testing.T) {
	assert.Equal(t, 5.5, RoundOneDecimal(5.5))
	assert.Equal(t, 12.3, RoundOneDecimal(12.34))
	assert.Equal(t, 40.0, RoundOneDecimal(39.96))
	assert.Equal(t, 0.0, RoundOneDecimal(0.04))

	t.Run("exact ties round up", func(t *testing.T) {
		assert.Equal(t, 12.3, RoundOneDecimal(12.25))
		assert.Equal(t, 0.3, RoundOneDecimal(0.25))
		assert.Equal(t, 2.8, RoundOneDecimal(2.75))
		assert.Equal(t, 4.8, RoundOneDecimal(4.75))
	})

	t.Run("inexact halves follow the stored value", func(t *testing.T) {
		assert.Equal(t, 5.5, RoundOneDecimal(5.45))
		assert.Equal(t, 1.4, RoundOneDecimal(1.45))
	})

	t.Run("negative ties round away from zero", func(t *testing.T) {
		assert.Equal(t, -0.3, RoundOneDecimal(-0.25))
	})
}

func TestParseUnit(t *testing.T) {
	u, ok := ParseUnit("fl oz")
	assert.True(t, ok)
	assert.Equal(t, UnitFluidOunce, u)

	_, ok = ParseUnit("gallon")
	assert.False(t, ok)
}

func TestProductPayloadFormValues(t *testing.T) {
	p := ProductPayload{
		BrandName:       "Awesome Brews",
		ProductClass:    "Beer",
		AlcoholContent:  5.5,
		NetContents:     12,
		NetContentsUnit: UnitFluidOunce,
	}

	assert.Equal(t, [][2]string{
		{"brandName", "Awesome Brews"},
		{"productClass", "Beer"},
		{"alcoholContent", "5.5"},
		{"netContents", "12"},
		{"netContentsUnit", "fl oz"},
	}, p.FormValues())
}

func TestValidationErrorsAny(t *testing.T) {
	assert.False(t, ValidationErrors{}.Any())
	assert.False(t, ValidationErrors{FieldBrandName: false}.Any())
	assert.True(t, ValidationErrors{FieldBrandName: false, FieldImages: true}.Any())
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "passwd.jpg", SanitizeFilename("../../../etc/passwd.jpg"))
	assert.Equal(t, "system32.jpg", SanitizeFilename("..\\..\\windows\\system32.jpg"))
	assert.Equal(t, "label_1.png", SanitizeFilename("label:1.png"))
	assert.Equal(t, "image", SanitizeFilename(""))
}
