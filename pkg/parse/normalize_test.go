package parse

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"UppercaseSchemeAndHost", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"DefaultHTTPPort", "http://example.com:80/a", "http://example.com/a"},
		{"DefaultHTTPSPort", "https://example.com:443/a", "https://example.com/a"},
		{"NonDefaultPortKept", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"HTTPPortOnHTTPSKept", "https://example.com:80/a", "https://example.com:80/a"},
		{"EmptyPath", "http://example.com", "http://example.com/"},
		{"RootSlashKept", "http://example.com/", "http://example.com/"},
		{"TrailingSlashRemoved", "http://example.com/shop/", "http://example.com/shop"},
		{"FragmentRemoved", "http://example.com/page#section", "http://example.com/page"},
		{"QueryKept", "http://example.com/search?q=Test&page=2", "http://example.com/search?q=Test&page=2"},
		{"QueryAndFragment", "http://example.com/p/?id=1#top", "http://example.com/p?id=1"},
		{"PathCaseKept", "http://example.com/Product/ABC", "http://example.com/Product/ABC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := url.Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, NormalizeURL(parsed))
		})
	}

	assert.Equal(t, "", NormalizeURL(nil))
}

func TestNormalizeURL_DistinctQueriesStayDistinct(t *testing.T) {
	a, _ := url.Parse("https://shop.example.com/list?page=1")
	b, _ := url.Parse("https://shop.example.com/list?page=2")
	assert.NotEqual(t, NormalizeURL(a), NormalizeURL(b))
}

func TestNormalizeURL_DoesNotModifyInput(t *testing.T) {
	parsed, _ := url.Parse("HTTP://EXAMPLE.COM:80/path/?q=test#section")
	before := *parsed

	_ = NormalizeURL(parsed)

	assert.Equal(t, before, *parsed)
}

func TestParseAndNormalize(t *testing.T) {
	got, parsed, err := ParseAndNormalize("  HTTP://EXAMPLE.COM/PATH/?x=1  ")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/PATH?x=1", got)
	assert.NotNil(t, parsed)

	for _, bad := range []string{"", "example.com/path", "path/to/page", "://example.com"} {
		t.Run(bad, func(t *testing.T) {
			s, u, err := ParseAndNormalize(bad)
			assert.Error(t, err)
			assert.Empty(t, s)
			assert.Nil(t, u)
		})
	}
}

func TestExtractLinks(t *testing.T) {
	html := `<html><body>
		<a href="/product/1">One</a>
		<a href="/product/1/#reviews">One again</a>
		<a href="https://shop.example.com/product/2?color=red">Two</a>
		<a href="#top">Top</a>
		<a href="mailto:hi@example.com">Mail</a>
		<a href="javascript:void(0)">JS</a>
		<a href="/cart" rel="nofollow">Cart</a>
		<a href="https://other.org/x">Elsewhere</a>
		<a href="">Empty</a>
	</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	base, _ := url.Parse("https://shop.example.com/category/")

	assert.Equal(t, []string{
		"https://shop.example.com/product/1",
		"https://shop.example.com/product/2?color=red",
		"https://other.org/x",
	}, ExtractLinks(doc, base))
}
