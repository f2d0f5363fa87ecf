package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleanup/dashboard/internal/core/record"
)

var categorySchema = record.Schema{
	IDField: "_id",
	Fields: []record.Field{
		{Name: "name", Kind: record.KindString, Required: true},
		{Name: "price", Kind: record.KindNumber, Required: true},
		{Name: "active", Kind: record.KindBoolean},
		{Name: "image", Kind: record.KindFile, Required: true},
		{Name: "updatedAt", Kind: record.KindTimestamp},
	},
}

func TestValidator_Valid(t *testing.T) {
	v := NewValidator()
	err := v.Validate("service_categories", categorySchema, record.Record{
		"name":      "Deep clean",
		"price":     5000.0,
		"active":    nil,
		"image":     record.File{Name: "deep.png"},
		"updatedAt": time.Now(),
		"extra":     "kept",
	})
	assert.NoError(t, err)

	err = v.Validate("service_categories", categorySchema, record.Record{
		"name":  "Deep clean",
		"price": 5000.0,
		"image": "/uploads/deep.png",
	})
	assert.NoError(t, err, "an existing file URL satisfies a file field")
}

func TestValidator_RequiredFields(t *testing.T) {
	v := NewValidator()
	err := v.Validate("service_categories", categorySchema, record.Record{
		"name":  "   ",
		"price": nil,
	})
	require.Error(t, err)
	require.True(t, IsValidationError(err))

	fields := GetValidationErrors(err).Fields()
	assert.Equal(t, "is required", fields["name"])
	assert.Equal(t, "is required", fields["price"])
	assert.Equal(t, "is required", fields["image"])
}

func TestValidator_WrongType(t *testing.T) {
	v := NewValidator()
	err := v.Validate("service_categories", categorySchema, record.Record{
		"name":   "Deep clean",
		"price":  5000.0,
		"image":  "/x.png",
		"active": "yes",
	})
	require.Error(t, err)
	fields := GetValidationErrors(err).Fields()
	assert.Contains(t, fields["active"], "must be of type")
}

func TestValidator_Partial(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.ValidatePartial("service_categories", categorySchema, record.Record{"price": 10.0}))

	err := v.ValidatePartial("service_categories", categorySchema, record.Record{"price": "ten"})
	assert.True(t, IsValidationError(err))

	err = v.ValidatePartial("service_categories", categorySchema, record.Record{"name": "  "})
	require.True(t, IsValidationError(err), "a present required field may not be blanked")
	assert.Contains(t, GetValidationErrors(err).Fields(), "name")
}

func TestValidator_EmptySchema(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Validate("anything", record.Schema{}, record.Record{"x": 1}))
}

func TestGetValidationErrors_Other(t *testing.T) {
	assert.Nil(t, GetValidationErrors(errors.New("boom")))
	assert.False(t, IsValidationError(errors.New("boom")))
}

func TestSchemaFor(t *testing.T) {
	doc := SchemaFor(categorySchema, true)
	assert.Equal(t, []string{"name", "price", "image"}, doc["required"])

	partial := SchemaFor(categorySchema, false)
	assert.NotContains(t, partial, "required")
}
