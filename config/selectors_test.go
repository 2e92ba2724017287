package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSelectors_Rozetka(t *testing.T) {
	reg := DefaultSelectors()

	ds, ok := reg.Lookup("https://rozetka.com.ua/ua/lenovo-ideapad/p123456/")
	require.True(t, ok)
	require.NotEmpty(t, ds.Price)
	assert.Equal(t, "p.product-price__big", ds.Price[0].CSS)

	last := ds.Price[len(ds.Price)-1]
	assert.True(t, last.IsMeta())
	assert.Equal(t, "product:price:amount", last.Meta)
	assert.Contains(t, ds.OutOfStock, "немає в наявності")

	_, ok = reg.Lookup("https://example.com/item")
	assert.False(t, ok)
}

func TestParseSelectors_LegacyJSON(t *testing.T) {
	blob := `{"shop.example": {` +
		`"name": ["h1.product"], ` +
		`"price": [".price", {"css": "[data-price]", "attr": "data-price"}], ` +
		`"old_price": [".was"], ` +
		`"in_stock_text": ["є в наявності"]}}`
	reg, err := ParseSelectors([]byte(blob))
	require.NoError(t, err)

	ds, ok := reg.Lookup("https://www.shop.example/p/1")
	require.True(t, ok)
	require.Len(t, ds.Price, 2)
	assert.Equal(t, Rule{CSS: ".price"}, ds.Price[0])
	assert.Equal(t, Rule{CSS: "[data-price]", Attr: "data-price"}, ds.Price[1])
	assert.Equal(t, "[data-price]@data-price", ds.Price[1].String())
}

func TestParseSelectors_Invalid(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{"bad css", "a.example:\n  price:\n    - 'p[class'\n"},
		{"both variants", "a.example:\n  price:\n    - {css: p, meta: og:price}\n"},
		{"empty rule", "a.example:\n  price:\n    - {attr: content}\n"},
		{"empty stock phrase", "a.example:\n  out_of_stock:\n    - ''\n"},
		{"not yaml", "a.example: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSelectors([]byte(tt.blob))
			assert.Error(t, err)
		})
	}
}

func TestLookup_LongestKeyWins(t *testing.T) {
	reg, err := ParseSelectors([]byte(`
example.com:
  price: [".generic"]
shop.example.com:
  price: [".specific"]
`))
	require.NoError(t, err)

	ds, ok := reg.Lookup("https://shop.example.com/x")
	require.True(t, ok)
	assert.Equal(t, ".specific", ds.Price[0].CSS)

	ds, ok = reg.Lookup("https://example.com/x")
	require.True(t, ok)
	assert.Equal(t, ".generic", ds.Price[0].CSS)
}

func TestLoadSelectors_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site_selectors.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rozetka.com.ua": {"price": [".custom-price"]}}`), 0o644))

	reg, err := LoadSelectors(path)
	require.NoError(t, err)
	ds, ok := reg.Lookup("https://rozetka.com.ua/p/1")
	require.True(t, ok)
	assert.Equal(t, ".custom-price", ds.Price[0].CSS)

	reg, err = LoadSelectors(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
}
