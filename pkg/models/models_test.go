package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageDBEntry_OmitEmpty(t *testing.T) {
	entry := PageDBEntry{
		Status:      PageStatusPending,
		LastAttempt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	raw := string(data)
	assert.NotContains(t, raw, "error_type")
	assert.NotContains(t, raw, "content_hash")
	assert.Contains(t, raw, `"status":"pending"`)
}

func TestCrawlResult_ProductPages(t *testing.T) {
	res := CrawlResult{Pages: []PageRecord{
		{URL: "https://a.com/", Sequence: 0},
		{URL: "https://a.com/product/1", Sequence: 1, IsProductPage: true},
		{URL: "https://a.com/about", Sequence: 2},
		{URL: "https://a.com/product/2", Sequence: 3, IsProductPage: true},
	}}

	products := res.ProductPages()
	require.Len(t, products, 2)
	assert.Equal(t, 1, products[0].Sequence)
	assert.Equal(t, 3, products[1].Sequence)
}

func TestExtractionRecord_TextAndValues(t *testing.T) {
	rec := ExtractionRecord{Fields: map[string]FieldValue{
		"name":   {Value: "Widget", Rule: "h1::text"},
		"images": {Values: []string{"/a.jpg", "/b.jpg"}, Rule: ".product img::attr(src)", Rank: 2},
	}}

	assert.Equal(t, "Widget", rec.Text("name"))
	assert.Equal(t, "/a.jpg", rec.Text("images"))
	assert.Equal(t, "", rec.Text("sku"))
	assert.Equal(t, []string{"Widget"}, rec.Values("name"))
	assert.Equal(t, []string{"/a.jpg", "/b.jpg"}, rec.Values("images"))
	assert.Nil(t, rec.Values("sku"))
}

func TestExtractionRecord_AbsentFieldNotSerialized(t *testing.T) {
	rec := ExtractionRecord{URL: "https://a.com/p", Fields: map[string]FieldValue{}}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "price_numeric")
	assert.NotContains(t, string(data), "availability")
}
