package extractor

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// Product is one author-declared product record.
type Product struct {
	Name         string
	Price        string // as declared, not normalized
	Currency     string
	Availability string
}

// Structured returns product records from JSON-LD blocks followed by one
// record assembled from Open Graph / product meta tags (if any). Malformed
// JSON-LD blocks are skipped.
func Structured(doc *goquery.Document) []Product {
	var out []Product
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		payload := strings.TrimSpace(s.Text())
		if payload == "" {
			return
		}
		if !gjson.Valid(payload) {
			slog.Debug("extractor: skipping malformed json-ld", "bytes", len(payload))
			return
		}
		walkJSONLD(gjson.Parse(payload), &out)
	})

	if p, ok := metaProduct(doc); ok {
		out = append(out, p)
	}
	return out
}

// walkJSONLD visits every object in v (including @graph members and nested
// entities) and records those that look like a product or offer.
func walkJSONLD(v gjson.Result, out *[]Product) {
	switch {
	case v.IsArray():
		for _, item := range v.Array() {
			walkJSONLD(item, out)
		}
	case v.IsObject():
		m := v.Map()
		switch {
		case hasType(m, "product") || (m["@type"].Type == gjson.Null && m["offers"].Exists()):
			*out = append(*out, productFrom(m))
			// Nested products (isVariantOf, hasVariant) are still worth a look.
			for key, child := range m {
				if key == "offers" {
					continue
				}
				if child.IsObject() || child.IsArray() {
					walkJSONLD(child, out)
				}
			}
			return
		case hasType(m, "offer") || hasType(m, "aggregateoffer"):
			p := Product{}
			fillOffer(&p, v)
			if p.Price != "" {
				*out = append(*out, p)
			}
			return
		}
		for _, child := range m {
			if child.IsObject() || child.IsArray() {
				walkJSONLD(child, out)
			}
		}
	}
}

// hasType reports whether @type (string or array) names typ, case-insensitively.
func hasType(m map[string]gjson.Result, typ string) bool {
	t, ok := m["@type"]
	if !ok {
		return false
	}
	if t.IsArray() {
		for _, x := range t.Array() {
			if strings.EqualFold(lastSegment(x.String()), typ) {
				return true
			}
		}
		return false
	}
	return strings.EqualFold(lastSegment(t.String()), typ)
}

// lastSegment strips a schema.org URL prefix ("http://schema.org/Product").
func lastSegment(s string) string {
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func productFrom(m map[string]gjson.Result) Product {
	p := Product{Name: strings.TrimSpace(m["name"].String())}
	offers := m["offers"]
	if offers.IsArray() {
		for _, o := range offers.Array() {
			fillOffer(&p, o)
			if p.Price != "" {
				break
			}
		}
	} else if offers.Exists() {
		fillOffer(&p, offers)
	}
	return p
}

// fillOffer reads price, currency and availability from an Offer-like
// object. An explicit price plus currency is preferred over a
// priceSpecification sub-object.
func fillOffer(p *Product, offer gjson.Result) {
	if !offer.IsObject() {
		return
	}
	m := offer.Map()
	if p.Availability == "" {
		p.Availability = m["availability"].String()
	}

	for _, key := range []string{"price", "lowPrice", "highPrice"} {
		if v := scalar(m[key]); v != "" {
			p.Price = v
			p.Currency = m["priceCurrency"].String()
			return
		}
	}

	spec := m["priceSpecification"]
	if spec.IsArray() {
		arr := spec.Array()
		if len(arr) == 0 {
			return
		}
		spec = arr[0]
	}
	if spec.IsObject() {
		sm := spec.Map()
		if v := scalar(sm["price"]); v != "" {
			p.Price = v
			p.Currency = sm["priceCurrency"].String()
			if p.Currency == "" {
				p.Currency = m["priceCurrency"].String()
			}
		}
	}
}

// scalar returns a string or number value as text; objects, arrays and
// nulls yield "".
func scalar(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.String())
	case gjson.Number:
		return v.Raw
	default:
		return ""
	}
}

// metaProduct assembles a record from og:title and product:* meta tags.
func metaProduct(doc *goquery.Document) (Product, bool) {
	p := Product{
		Name:         metaContent(doc, "og:title"),
		Price:        metaContent(doc, "product:price:amount", "og:price:amount"),
		Currency:     metaContent(doc, "product:price:currency", "og:price:currency"),
		Availability: metaContent(doc, "product:availability", "og:availability"),
	}
	if p.Price == "" {
		// A bare og:title is a name hint, not a product record.
		p.Name = ""
	}
	return p, p.Price != "" || p.Availability != ""
}

// metaContent returns the content of the first meta tag whose property,
// name or itemprop equals one of keys.
func metaContent(doc *goquery.Document, keys ...string) string {
	for _, key := range keys {
		var found string
		doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			for _, attr := range []string{"property", "name", "itemprop"} {
				if v, ok := s.Attr(attr); ok && strings.EqualFold(strings.TrimSpace(v), key) {
					found = strings.TrimSpace(s.AttrOr("content", ""))
					return found == ""
				}
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// metaAvailability reads product availability meta tags outside of a full
// product record.
func metaAvailability(doc *goquery.Document) (bool, bool) {
	v := metaContent(doc, "product:availability", "og:availability")
	if v == "" {
		return false, false
	}
	t := strings.ToLower(strings.ReplaceAll(v, " ", ""))
	if strings.Contains(t, "oos") {
		return false, true
	}
	return availabilityInStock(v), true
}
