// Package testsite serves a small fixed shop for crawl and pipeline tests.
package testsite

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
)

// Product is one product page of the fixture shop.
type Product struct {
	Slug        string
	Name        string
	SKU         string
	Price       string
	Description string
	Images      []string
	Specs       [][2]string
}

// Products are served at /product/<slug>.
var Products = []Product{
	{
		Slug:        "widget-1",
		Name:        "Deluxe Widget",
		SKU:         "WID-001",
		Price:       "$1,299.99",
		Description: "The deluxe widget is an excellent and reliable choice. It is durable, versatile and easy to use. Customers love its premium finish.",
		Images:      []string{"/img/w1-large.jpg", "/img/w1-thumb.jpg", "/img/w1-side.jpg"},
		Specs:       [][2]string{{"Width", "30 cm"}, {"Height", "12 cm"}, {"Weight", "2.5 kg"}, {"Material", "Steel"}},
	},
	{
		Slug:        "widget-2",
		Name:        "Basic Widget",
		SKU:         "WID-002",
		Price:       "$19.50",
		Description: "A basic widget. It works.",
		Images:      []string{"/img/w2.jpg"},
		Specs:       [][2]string{{"Color", "Blue"}},
	},
	{
		Slug:        "widget-3",
		Name:        "Broken Widget",
		SKU:         "WID-003",
		Price:       "€45",
		Description: "This widget is poor. The design is cheap and the finish is disappointing. Returns are difficult.",
		Images:      nil,
	},
}

// PageCount is the number of HTML pages reachable from "/": the products
// plus ten other pages.
const PageCount = 13

// Shop is a running fixture server.
type Shop struct {
	*httptest.Server
	Hits atomic.Int64 // HTML page requests served
}

// NewShop starts the fixture shop; it is closed when the test ends.
func NewShop(t testing.TB) *Shop {
	t.Helper()
	s := &Shop{}
	mux := http.NewServeMux()

	page := func(path, title, body string, links ...string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != path {
				http.NotFound(w, r)
				return
			}
			s.Hits.Add(1)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, render(title, body, links))
		})
	}

	// The home page links every product first, so any crawl limit of four or
	// more admits all of them.
	page("/", "Home", "<h1>Welcome to the shop</h1><p>Great deals every day.</p>",
		"/product/widget-1", "/product/widget-2", "/product/widget-3",
		"/category", "/about", "/contact", "/blog", "#top")
	page("/category", "All products", "<h1>Products</h1>",
		"/product/widget-1", "/product/widget-2", "/product/widget-3", "/page/2")
	page("/page/2", "Products page 2", "<h1>More products</h1>", "/product/widget-3", "/faq", "/")
	page("/about", "About us", "<h1>About</h1><p>We sell widgets.</p>", "/", "/careers")
	page("/contact", "Contact", "<h1>Contact</h1>", "mailto:shop@example.com", "/shipping", "/")
	page("/blog", "Blog", "<h2>News</h2>", "https://elsewhere.example.org/post", "/blog#comments")
	page("/faq", "FAQ", "<h1>FAQ</h1>", "/about", "/returns")
	page("/shipping", "Shipping", "<h1>Shipping</h1><p>Orders ship within two days.</p>", "/returns")
	page("/returns", "Returns", "<h1>Returns</h1><p>Thirty day returns.</p>", "/contact")
	page("/careers", "Careers", "<h1>Careers</h1><p>We are hiring.</p>", "/about")
	for _, p := range Products {
		page("/product/"+p.Slug, p.Name+" | Shop", productBody(p), "/category", "/")
	}
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "User-agent: *\nAllow: /\n")
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// PageURL returns the absolute URL of path on the shop.
func (s *Shop) PageURL(path string) string { return s.Server.URL + path }

// Host is the shop's host name, for allowed_domains.
func (s *Shop) Host() string {
	u, err := url.Parse(s.Server.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func render(title, body string, links []string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>")
	b.WriteString(title)
	b.WriteString(`</title><meta name="description" content="`)
	b.WriteString(title)
	b.WriteString(` at the shop"></head><body>`)
	b.WriteString(body)
	b.WriteString("<nav>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, l, l)
	}
	b.WriteString("</nav></body></html>")
	return b.String()
}

func productBody(p Product) string {
	var b strings.Builder
	b.WriteString(`<div class="product">`)
	fmt.Fprintf(&b, `<h1 class="product-title">%s</h1>`, p.Name)
	fmt.Fprintf(&b, `<span class="price">%s</span>`, p.Price)
	fmt.Fprintf(&b, `<span itemprop="sku">%s</span>`, p.SKU)
	fmt.Fprintf(&b, `<div class="product-description"><p>%s</p></div>`, p.Description)
	for _, img := range p.Images {
		fmt.Fprintf(&b, `<img class="product-image" src="%s" alt="%s">`, img, p.Name)
	}
	if len(p.Specs) > 0 {
		b.WriteString(`<table class="specs">`)
		for _, kv := range p.Specs {
			fmt.Fprintf(&b, "<tr><th>%s</th><td>%s</td></tr>", kv[0], kv[1])
		}
		b.WriteString("</table>")
	}
	b.WriteString("</div>")
	return b.String()
}
