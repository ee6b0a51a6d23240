package repository

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"household-catalog/internal/domains/catalog/model"
)

func TestIDFilter(t *testing.T) {
	oid := bson.NewObjectID()
	f := idFilter(oid.Hex())
	assert.Equal(t, bson.M{"_id": bson.M{"$in": bson.A{oid, oid.Hex()}}}, f)

	assert.Equal(t, bson.M{"_id": "legacy-42"}, idFilter("legacy-42"))
}

func TestBuildBookFilter(t *testing.T) {
	assert.Equal(t, bson.M{}, buildBookFilter(model.BookQuery{}))

	single := buildBookFilter(model.BookQuery{Category: "Fiction"})
	assert.Equal(t, bson.M{"categories": "Fiction"}, single)

	multi := buildBookFilter(model.BookQuery{Category: "Fiction", BorrowStatus: model.BorrowLent})
	and, ok := multi["$and"].(bson.A)
	require.True(t, ok)
	require.Len(t, and, 2)
	assert.Equal(t, bson.M{"borrowStatus": bson.M{"$in": bson.A{"out", "lent"}}}, and[1])
}

func TestBuildBookFilter_SearchEscapesRegex(t *testing.T) {
	f := buildBookFilter(model.BookQuery{Search: "c++"})
	or, ok := f["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 4)
	assert.Equal(t, bson.M{"title": bson.Regex{Pattern: `c\+\+`, Options: "i"}}, or[0])
}

func TestDecodeBookDocument(t *testing.T) {
	oid := bson.NewObjectID()
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	b := decodeBookDocument(map[string]interface{}{
		"_id":          oid,
		"title":        "Dune",
		"pages":        "412",
		"price":        "9.99",
		"categories":   bson.A{"Fiction", "Classic"},
		"category":     "Fiction",
		"borrowStatus": "out",
		"createTime":   bson.NewDateTimeFromTime(created),
	})

	assert.Equal(t, oid.Hex(), b.ID)
	assert.Equal(t, 412, b.Pages)
	assert.True(t, decimal.RequireFromString("9.99").Equal(b.Price))
	assert.Equal(t, []string{"Fiction", "Classic"}, b.Categories)
	assert.Equal(t, model.BorrowLent, b.BorrowStatus)
	assert.True(t, created.Equal(b.CreatedAt))
	assert.Zero(t, b.Drift)
}

func TestDecodeBookDocument_Drift(t *testing.T) {
	tests := []struct {
		name  string
		doc   map[string]interface{}
		drift model.Drift
	}{
		{"missing field", map[string]interface{}{"_id": "a", "category": "Fiction"}, model.DriftCategoriesMissing},
		{"null field", map[string]interface{}{"_id": "b", "categories": nil}, model.DriftCategoriesMissing},
		{"string instead of list", map[string]interface{}{"_id": "c", "categories": "Fiction"}, model.DriftCategoriesMalformed},
		{"mixed element types", map[string]interface{}{"_id": "d", "categories": bson.A{"Fiction", int32(3)}}, model.DriftCategoriesMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := decodeBookDocument(tt.doc)
			assert.Equal(t, tt.drift, b.Drift)
			assert.Nil(t, b.Categories)
			assert.True(t, b.Drift.NeedsReinit())
		})
	}
}

func TestDocHelpers(t *testing.T) {
	assert.Equal(t, 7, docInt(int32(7)))
	assert.Equal(t, 7, docInt(" 7 "))
	assert.Equal(t, 0, docInt("n/a"))
	assert.Equal(t, 0, docInt(nil))

	assert.True(t, decimal.NewFromInt(5).Equal(docDecimal(int64(5))))
	assert.True(t, decimal.Zero.Equal(docDecimal("abc")))

	ts := docTime("2024-05-01T08:00:00Z")
	require.NotNil(t, ts)
	assert.Equal(t, 2024, ts.Year())

	d := docTime("2024-05-01")
	require.NotNil(t, d)
	assert.Equal(t, time.May, d.Month())

	assert.Nil(t, docTime(""))
	assert.Nil(t, docTime("yesterday"))
}

func TestDocStatus(t *testing.T) {
	assert.Equal(t, "out", toDocStatus(model.BorrowLent))
	assert.Equal(t, "in", toDocStatus(model.BorrowAvailable))
	assert.Equal(t, "in", toDocStatus(""))

	assert.Equal(t, model.BorrowLent, fromDocStatus("out"))
	assert.Equal(t, model.BorrowLent, fromDocStatus("lent"))
	assert.Equal(t, model.BorrowAvailable, fromDocStatus("in"))
	assert.Equal(t, model.BorrowAvailable, fromDocStatus(""))
}

func TestBookPatchDocument(t *testing.T) {
	title := "Dune"
	status := model.BorrowLent
	cats := []string{}

	set := bookPatchDocument(model.BookPatch{Title: &title, BorrowStatus: &status, Categories: &cats})
	assert.Equal(t, bson.M{
		"title":        "Dune",
		"borrowStatus": "out",
		"categories":   []string{},
	}, set)

	assert.Empty(t, bookPatchDocument(model.BookPatch{}))
}
