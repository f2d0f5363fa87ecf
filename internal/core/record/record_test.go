package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paymentSchema = Schema{
	IDField: "id",
	Fields: []Field{
		{Name: "status", Kind: KindString, Required: true},
		{Name: "amount", Kind: KindNumber},
		{Name: "paid", Kind: KindBoolean},
		{Name: "created_at", Kind: KindTimestamp},
		{Name: "booking_id", Kind: KindReference, Ref: "bookings"},
		{Name: "receipt", Kind: KindFile},
	},
}

func TestClone_IsDeep(t *testing.T) {
	orig := Record{"id": 1.0, "meta": map[string]any{"tags": []any{"a"}}}
	cp := orig.Clone()

	cp["meta"].(map[string]any)["tags"].([]any)[0] = "b"
	cp["id"] = 2.0

	assert.Equal(t, "a", orig["meta"].(map[string]any)["tags"].([]any)[0])
	assert.Equal(t, 1.0, orig["id"])
}

func TestIDOf(t *testing.T) {
	id, ok := Record{"id": 5.0}.IDOf("id")
	require.True(t, ok)
	assert.Equal(t, "5", id)

	id, ok = Record{"_id": "abc"}.IDOf("_id")
	require.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = Record{"id": nil}.IDOf("id")
	assert.False(t, ok)
}

func TestCollection_UpsertAndWithout(t *testing.T) {
	c := Collection{{"id": 1.0, "v": "a"}, {"id": 2.0, "v": "b"}}

	replaced := c.Upsert("id", Record{"id": 2.0, "v": "B"})
	assert.Equal(t, "B", replaced[1]["v"])
	assert.Equal(t, "b", c[1]["v"], "original collection must not change")

	added := c.Upsert("id", Record{"id": 3.0})
	require.Len(t, added, 3)
	assert.Equal(t, 3.0, added[0]["id"])

	removed := c.Without("id", "1")
	require.Len(t, removed, 1)
	assert.Equal(t, 2.0, removed[0]["id"])
	assert.Len(t, c, 2)
}

func TestEqual(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	assert.True(t, Equal("Paid", "Paid"))
	assert.False(t, Equal("Paid", "paid"))
	assert.True(t, Equal(10.0, 10))
	assert.False(t, Equal("10", 10.0))
	assert.True(t, Equal(ts, ts.In(time.FixedZone("x", 3600))))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, ""))
	assert.True(t, Equal(true, true))
}

func TestNormalize(t *testing.T) {
	r := paymentSchema.Normalize(Record{
		"id":         "p1",
		"amount":     "12.5",
		"created_at": "2024-05-01T10:00:00Z",
		"extra":      "kept",
	})

	assert.Equal(t, 12.5, r["amount"])
	assert.IsType(t, time.Time{}, r["created_at"])
	assert.Equal(t, "kept", r["extra"])
}

func TestCoerce(t *testing.T) {
	v, err := paymentSchema.Coerce("amount", "42")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)

	_, err = paymentSchema.Coerce("amount", "lots")
	assert.ErrorIs(t, err, ErrInvalidValue)

	v, err = paymentSchema.Coerce("paid", "true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = paymentSchema.Coerce("created_at", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, 2024, v.(time.Time).Year())

	v, err = paymentSchema.Coerce("booking_id", 7.0)
	require.NoError(t, err)
	assert.Equal(t, "7", v)

	v, err = paymentSchema.Coerce("amount", "")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = paymentSchema.Coerce("status", "")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	_, err = paymentSchema.Coerce("receipt", "not-a-file")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = paymentSchema.Coerce("nope", "x")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestText_ContainsValuesNotKeys(t *testing.T) {
	text := Record{"status": "Paid", "amount": 12.0, "note": nil}.Text()

	assert.Contains(t, text, "Paid")
	assert.Contains(t, text, "12")
	assert.NotContains(t, text, "status")
}
