package extractor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egor6820/price-tracker-server/config"
	"github.com/egor6820/price-tracker-server/models"
)

func page(body string) string {
	return "<html><head><title>Shop</title></head><body>" + body + "</body></html>"
}

func TestExtract_StructuredDataOnly(t *testing.T) {
	html := `<html><head><script type="application/ld+json">` +
		`{"name": "Widget", "offers": {"price": "199.99", "priceCurrency":"USD"}}` +
		`</script></head><body></body></html>`

	f := New(Options{}).Extract(html, nil, models.Harvest{})

	assert.Equal(t, "Widget", f.Name)
	assert.Equal(t, "199.99", f.Price)
	assert.Equal(t, SourceStructured, f.PriceSource)
	assert.Empty(t, f.OldPrice)
	assert.True(t, f.InStock)
}

func TestExtract_ReviewCountIsNotAPrice(t *testing.T) {
	html := page(`<div class="reviews"><span>97 відгуків</span></div>`)

	f := New(Options{}).Extract(html, nil, models.Harvest{})

	assert.Empty(t, f.Price, "review count must not become a price")
	assert.Equal(t, SourceNone, f.PriceSource)
}

func TestExtract_DomainRuleNormalizesHryvnia(t *testing.T) {
	html := page(`<h1 class="title__font">Ноутбук Lenovo IdeaPad 3</h1>` +
		`<p class="product-price__big">1 280,00 ₴</p>`)
	ds, ok := config.DefaultSelectors().Lookup("https://rozetka.com.ua/p1/")
	require.True(t, ok)

	f := New(Options{}).Extract(html, ds, models.Harvest{})

	assert.Equal(t, "1280", f.Price)
	assert.Equal(t, SourceDomain, f.PriceSource)
	assert.Equal(t, "Ноутбук Lenovo IdeaPad 3", f.Name)
	assert.Equal(t, SourceDomain, f.NameSource)
}

func TestExtract_DomainPriceWithoutCurrencyBelowMagnitude(t *testing.T) {
	html := page(`<p class="product-price__big">15</p>`)
	ds, _ := config.DefaultSelectors().Lookup("https://rozetka.com.ua/p1/")

	f := New(Options{}).Extract(html, ds, models.Harvest{})

	assert.NotEqual(t, SourceDomain, f.PriceSource)
}

func TestExtract_DomainOutOfStockAndOldPrice(t *testing.T) {
	html := page(`<h1 class="title__font">Кавоварка Delonghi</h1>` +
		`<p class="product-price__small">5 999 ₴</p>` +
		`<p class="product-price__big">4 499 ₴</p>` +
		`<div class="status">Немає в наявності</div>`)
	ds, _ := config.DefaultSelectors().Lookup("https://rozetka.com.ua/p2/")

	f := New(Options{}).Extract(html, ds, models.Harvest{})

	assert.Equal(t, "4499", f.Price)
	assert.Equal(t, "5999", f.OldPrice)
	assert.False(t, f.InStock)
}

func TestExtract_HarvestPreferredOverStaticRules(t *testing.T) {
	html := page(`<p class="product-price__big">Зачекайте трохи...</p>`)
	ds, _ := config.DefaultSelectors().Lookup("https://rozetka.com.ua/p3/")
	h := models.Harvest{Name: "Смартфон Samsung Galaxy A55", PriceText: "16 999 ₴", OldPriceText: "18 999 ₴"}

	f := New(Options{}).Extract(html, ds, h)

	assert.Equal(t, "16999", f.Price)
	assert.Equal(t, SourceHarvest, f.PriceSource)
	assert.Equal(t, "18999", f.OldPrice)
	assert.Equal(t, "Смартфон Samsung Galaxy A55", f.Name)
}

func TestExtract_HarvestPlaceholderIgnored(t *testing.T) {
	h := models.Harvest{Name: "Завантаження...", PriceText: "Зачекайте 5 секунд"}

	f := New(Options{}).Extract(page(""), nil, h)

	assert.Empty(t, f.Price)
	assert.NotEqual(t, "Завантаження...", f.Name)
}

func TestExtract_HeuristicWithOldPriceSibling(t *testing.T) {
	html := page(`<h1>Електрочайник Philips HD9350</h1>` +
		`<div class="product-card">` +
		`<span class="rating">4.8</span>` +
		`<div class="prices"><span class="price-current">1 299 грн</span>` +
		`<span class="price-old">1 599 грн</span></div>` +
		`</div>`)

	f := New(Options{}).Extract(html, nil, models.Harvest{})

	assert.Equal(t, "1299", f.Price)
	assert.Equal(t, SourceHeuristic, f.PriceSource)
	assert.Equal(t, "1599", f.OldPrice)
	assert.Equal(t, "Електрочайник Philips HD9350", f.Name)
}

func TestExtract_LowerSiblingIsNotOldPrice(t *testing.T) {
	html := page(`<h1>Кава в зернах Lavazza 1 кг</h1>` +
		`<div class="product-card"><div class="prices">` +
		`<span class="price-current">899 грн</span>` +
		`<span class="price-old">89 грн</span></div></div>`)

	f := New(Options{}).Extract(html, nil, models.Harvest{})

	assert.Equal(t, "899", f.Price)
	assert.Empty(t, f.OldPrice)
}

func TestExtract_MetaPriceAndAvailability(t *testing.T) {
	html := `<html><head>
<meta property="og:title" content="Пилосос Dyson V15">
<meta property="product:price:amount" content="24999.00">
<meta property="product:price:currency" content="UAH">
<meta property="product:availability" content="out of stock">
</head><body></body></html>`

	f := New(Options{}).Extract(html, nil, models.Harvest{})

	assert.Equal(t, "24999", f.Price)
	assert.Equal(t, "Пилосос Dyson V15", f.Name)
	assert.False(t, f.InStock)
}

func TestExtract_TextFallback(t *testing.T) {
	html := page(`<section>Ціна товару сьогодні: 2 450 грн, доставка безкоштовна по всій ` +
		`території України протягом трьох робочих днів після оформлення</section>`)

	f := New(Options{}).Extract(html, nil, models.Harvest{})

	assert.Equal(t, "2450", f.Price)
	assert.Equal(t, SourceText, f.PriceSource)
}

func TestExtract_TextFallbackKeepsLinesApart(t *testing.T) {
	f := New(Options{}).Extract(page(`<h2>Артикул 123456</h2><a>1 299 грн</a>`), nil, models.Harvest{})
	assert.Equal(t, "1299", f.Price)

	f = New(Options{}).Extract(page(`<h2>Код 1234567</h2><h3>999 грн</h3>`), nil, models.Harvest{})
	assert.Equal(t, "999", f.Price)
}

func TestTextPrice_NumberDoesNotCrossLineBreak(t *testing.T) {
	price, _, ok := New(Options{}).textPrice("Код 1234567\n999 грн")

	require.True(t, ok)
	assert.Equal(t, "999", price)
}

func TestTextPrice_CurrencyCodeNeedsWordBoundary(t *testing.T) {
	for _, s := range []string{"5 rubber ducks", "30 europe", "7 usda labels", "12 plnx"} {
		assert.False(t, reNumberCurrency.MatchString(s), s)
	}
	for _, s := range []string{"30 eur", "1 299 грн", "45 USD.", "120 zł", "99₴"} {
		assert.True(t, reNumberCurrency.MatchString(s), s)
	}

	_, _, ok := New(Options{}).textPrice("5 rubber ducks")
	assert.False(t, ok)
}

func TestExtract_EmptyDocument(t *testing.T) {
	f := New(Options{}).Extract("", nil, models.Harvest{})

	assert.Empty(t, f.Price)
	assert.True(t, f.InStock)
}

func TestExtract_MinMagnitudeIsTunable(t *testing.T) {
	html := page(`<div><span>Ціна</span> <b>15</b></div>`)

	strict := New(Options{}).Extract(html, nil, models.Harvest{})
	loose := New(Options{MinMagnitude: 10}).Extract(html, nil, models.Harvest{})

	assert.Empty(t, strict.Price)
	assert.Equal(t, "15", loose.Price)
}

func TestScore_CurrencyClassOutranksUnlabeled(t *testing.T) {
	for i := 0; i < 50; i++ {
		big := 100 + i*37
		small := 1 + i
		if small >= big {
			continue
		}
		html := page(fmt.Sprintf(
			`<span class="misc">%d</span><span class="price">%d ₴</span>`, small, big))
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		require.NoError(t, err)

		cands := collectCandidates(doc)
		var labeled, plain int
		for _, c := range cands {
			switch {
			case strings.Contains(c.text, "₴"):
				labeled = c.score
			default:
				plain = c.score
			}
		}
		assert.Greater(t, labeled, plain, "fixture %d", i)

		c := New(Options{}).bestCandidate(doc)
		require.NotNil(t, c)
		assert.Equal(t, fmt.Sprint(big), c.value)
	}
}
