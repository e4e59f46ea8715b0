package services

import (
	"testing"

	"github.com/labelscan/portal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillForm(f *ProductForm, brand, class, alcohol, net, unit string) {
	f.SetField(models.FieldBrandName, brand)
	f.SetField(models.FieldProductClass, class)
	f.SetField(models.FieldAlcoholContent, alcohol)
	f.SetField(models.FieldNetContents, net)
	f.SetField(models.FieldNetContentsUnit, unit)
}

func TestProductForm_Submit(t *testing.T) {
	t.Run("valid form yields the payload", func(t *testing.T) {
		f := NewProductForm(true)
		fillForm(f, "Awesome Brews", "Beer", "5.5", "12", "fl oz")

		payload, err := f.Submit(1)
		require.NoError(t, err)
		assert.Equal(t, models.ProductPayload{
			BrandName:       "Awesome Brews",
			ProductClass:    "Beer",
			AlcoholContent:  5.5,
			NetContents:     12,
			NetContentsUnit: models.UnitFluidOunce,
		}, *payload)
		assert.Empty(t, f.Feedback())
		assert.False(t, f.Errors().Any())
	})

	t.Run("alcohol content is rounded to one decimal", func(t *testing.T) {
		f := NewProductForm(true)
		fillForm(f, "Brand", "Wine", "12.46", "750", "ml")

		payload, err := f.Submit(1)
		require.NoError(t, err)
		assert.Equal(t, 12.5, payload.AlcoholContent)
		assert.Equal(t, 750.0, payload.NetContents)
		assert.Equal(t, models.UnitMilliliter, payload.NetContentsUnit)
	})

	t.Run("alcohol content ties round up", func(t *testing.T) {
		for in, want := range map[string]float64{"12.25": 12.3, "0.25": 0.3, "2.75": 2.8, "5.45": 5.5} {
			f := NewProductForm(true)
			fillForm(f, "Brand", "Wine", in, "750", "ml")

			payload, err := f.Submit(1)
			require.NoError(t, err, in)
			assert.Equal(t, want, payload.AlcoholContent, in)
		}
	})

	t.Run("boundaries are inclusive for alcohol", func(t *testing.T) {
		for _, v := range []string{"0", "100"} {
			f := NewProductForm(true)
			fillForm(f, "Brand", "Spirits", v, "1", "L")
			_, err := f.Submit(1)
			assert.NoError(t, err, v)
		}
	})

	t.Run("every invalid field is marked at once", func(t *testing.T) {
		f := NewProductForm(true)
		fillForm(f, "   ", "", "101", "0", "ml")

		payload, err := f.Submit(0)
		assert.Nil(t, payload)
		assert.Equal(t, models.ErrInvalidForm, err)
		assert.Equal(t, models.ErrInvalidForm.Message, f.Feedback())
		for _, field := range []models.Field{
			models.FieldBrandName,
			models.FieldProductClass,
			models.FieldAlcoholContent,
			models.FieldNetContents,
			models.FieldImages,
		} {
			assert.True(t, f.Invalid(field), field)
		}
	})

	t.Run("negative and non-numeric alcohol are invalid", func(t *testing.T) {
		for _, v := range []string{"-1", "abc", ""} {
			f := NewProductForm(true)
			fillForm(f, "Brand", "Beer", v, "12", "ml")
			_, err := f.Submit(1)
			assert.Error(t, err, v)
			assert.True(t, f.Invalid(models.FieldAlcoholContent), v)
		}
	})

	t.Run("payload keeps text fields as typed", func(t *testing.T) {
		f := NewProductForm(true)
		fillForm(f, " Awesome Brews ", "Beer", "5", "12", "ml")

		payload, err := f.Submit(1)
		require.NoError(t, err)
		assert.Equal(t, " Awesome Brews ", payload.BrandName)
	})
}

func TestProductForm_SetField(t *testing.T) {
	t.Run("editing a field clears its mark", func(t *testing.T) {
		f := NewProductForm(true)
		_, err := f.Submit(0)
		require.Error(t, err)
		require.True(t, f.Invalid(models.FieldBrandName))

		assert.True(t, f.SetField(models.FieldBrandName, "Brand"))
		assert.False(t, f.Invalid(models.FieldBrandName))
		assert.True(t, f.Invalid(models.FieldProductClass))
	})

	t.Run("net contents rejects malformed input", func(t *testing.T) {
		f := NewProductForm(true)
		assert.True(t, f.SetField(models.FieldNetContents, "12.5"))
		assert.False(t, f.SetField(models.FieldNetContents, "12.555"))
		assert.False(t, f.SetField(models.FieldNetContents, "1e3"))
		assert.False(t, f.SetField(models.FieldNetContents, "-4"))
		assert.Equal(t, "12.5", f.State().NetContents)

		assert.True(t, f.SetField(models.FieldNetContents, ""))
		assert.Empty(t, f.State().NetContents)
	})

	t.Run("unknown units are rejected", func(t *testing.T) {
		f := NewProductForm(true)
		assert.False(t, f.SetField(models.FieldNetContentsUnit, "gallon"))
		assert.Equal(t, models.UnitMilliliter, f.State().NetContentsUnit)
		assert.True(t, f.SetField(models.FieldNetContentsUnit, "L"))
		assert.Equal(t, models.UnitLiter, f.State().NetContentsUnit)
	})

	t.Run("unknown field is rejected", func(t *testing.T) {
		f := NewProductForm(true)
		assert.False(t, f.SetField(models.Field("vintage"), "1999"))
	})

	t.Run("image mark clears once an image exists", func(t *testing.T) {
		f := NewProductForm(true)
		_, _ = f.Submit(0)
		f.ClearImageError(0)
		assert.True(t, f.Invalid(models.FieldImages))
		f.ClearImageError(1)
		assert.False(t, f.Invalid(models.FieldImages))
	})
}

func TestProductForm_Hint(t *testing.T) {
	t.Run("out of range alcohol shows the hint", func(t *testing.T) {
		f := NewProductForm(true)
		f.SetField(models.FieldAlcoholContent, "150")
		assert.Equal(t, AlcoholHint, f.Hint(models.FieldAlcoholContent))

		f.SetField(models.FieldAlcoholContent, "40")
		assert.Empty(t, f.Hint(models.FieldAlcoholContent))

		f.SetField(models.FieldAlcoholContent, "")
		assert.Empty(t, f.Hint(models.FieldAlcoholContent))
	})

	t.Run("hint is off when warnings are disabled", func(t *testing.T) {
		f := NewProductForm(false)
		f.SetField(models.FieldAlcoholContent, "150")
		assert.Empty(t, f.Hint(models.FieldAlcoholContent))
	})

	t.Run("other fields have no hint", func(t *testing.T) {
		f := NewProductForm(true)
		assert.Empty(t, f.Hint(models.FieldBrandName))
	})
}

func TestProductForm_Reset(t *testing.T) {
	f := NewProductForm(true)
	fillForm(f, "Brand", "", "5", "12", "L")
	_, _ = f.Submit(0)

	f.Reset()
	assert.Equal(t, models.DefaultFormState(), f.State())
	assert.False(t, f.Errors().Any())
	assert.Empty(t, f.Feedback())
}
