package sheet

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storeflow/internal/core/domain"
)

var importTime = time.UnixMilli(1_700_000_000_000)

func TestToRow_ExportShape(t *testing.T) {
	p := domain.Product{
		ID: "p-1", Name: "Widget", SKU: "W-1", Category: "Tools",
		Quantity: 4, MinLevel: 2, Price: decimal.RequireFromString("3.25"),
		ImageURL: "https://example.com/w.png",
	}

	row := ToRow(p)

	assert.Len(t, row, len(ExportHeaders))
	for _, h := range ExportHeaders {
		assert.Contains(t, row, h)
	}
	assert.Equal(t, "Widget", row[HeaderName])
	assert.Equal(t, 4, row[HeaderQuantity])
	assert.Equal(t, 3.25, row[HeaderPrice])
	assert.Equal(t, 2, row[HeaderMinLevel])
}

func TestImportRows_QtyAlias(t *testing.T) {
	products := ImportRows([]Row{{"Name": "Bolt", "Qty": "42"}}, importTime)

	require.Len(t, products, 1)
	assert.Equal(t, 42, products[0].Quantity)
	assert.Equal(t, "Bolt", products[0].Name)
}

func TestImportRows_CaseInsensitiveHeaders(t *testing.T) {
	products := ImportRows([]Row{{"item name": "Nut", "CODE": " N-9 ", "group": "Hardware", "RATE": "0.10"}}, importTime)

	require.Len(t, products, 1)
	p := products[0]
	assert.Equal(t, "Nut", p.Name)
	assert.Equal(t, "N-9", p.SKU)
	assert.Equal(t, "Hardware", p.Category)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("0.10")))
}

func TestImportRows_NoRecognizedHeaders(t *testing.T) {
	products := ImportRows([]Row{{"Colour": "red", "Weight": "12"}}, importTime)

	require.Len(t, products, 1)
	p := products[0]
	assert.Equal(t, "Untitled", p.Name)
	assert.Equal(t, "Uncategorized", p.Category)
	assert.Equal(t, 0, p.Quantity)
	assert.True(t, p.Price.IsZero())
	assert.Equal(t, "", p.ImageURL)
	assert.Equal(t, domain.DefaultMinLevel, p.MinLevel)
	assert.Equal(t, "1700000000000", p.ID)
	assert.Equal(t, "IMP-1700000000000-0", p.SKU)
}

func TestImportRows_EmptyRowStillImports(t *testing.T) {
	products := ImportRows([]Row{{}, {}}, importTime)

	require.Len(t, products, 2)
	assert.Equal(t, "1700000000000", products[0].ID)
	assert.Equal(t, "1700000000001", products[1].ID)
	assert.Equal(t, "IMP-1700000000000-1", products[1].SKU)
}

func TestImportRows_MalformedNumbersDegrade(t *testing.T) {
	products := ImportRows([]Row{{"Name": "Odd", "Stock": "lots", "Price": "n/a"}}, importTime)

	require.Len(t, products, 1)
	assert.Equal(t, 0, products[0].Quantity)
	assert.True(t, products[0].Price.IsZero())
}

func TestImportRows_IgnoresSourceMinLevel(t *testing.T) {
	products := ImportRows([]Row{{"Name": "Cap", "Min Level": 40}}, importTime)

	require.Len(t, products, 1)
	assert.Equal(t, domain.DefaultMinLevel, products[0].MinLevel)
}

func TestImportRows_NumericCells(t *testing.T) {
	products := ImportRows([]Row{{"Name": "Gear", "Quantity": 12, "Price": 4.5}}, importTime)

	require.Len(t, products, 1)
	assert.Equal(t, 12, products[0].Quantity)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("4.5")))
}

func TestRoundTrip(t *testing.T) {
	original := []domain.Product{
		{ID: "a", Name: "Alpha", SKU: "A-1", Category: "One", Quantity: 10, MinLevel: 9, Price: decimal.RequireFromString("1.5"), ImageURL: "https://img/a"},
		{ID: "b", Name: "Beta", SKU: "B-2", Category: "Two", Quantity: 0, MinLevel: 1, Price: decimal.Zero},
	}

	back := ImportRows(ExportRows(original), importTime)

	require.Len(t, back, len(original))
	for i, want := range original {
		got := back[i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.SKU, got.SKU)
		assert.Equal(t, want.Category, got.Category)
		assert.Equal(t, want.Quantity, got.Quantity)
		assert.True(t, want.Price.Equal(got.Price), "price %s vs %s", want.Price, got.Price)
		assert.Equal(t, want.ImageURL, got.ImageURL)
		assert.Equal(t, domain.DefaultMinLevel, got.MinLevel)
	}
}

func TestValidateImport_ReportsSubstitutions(t *testing.T) {
	report := ValidateImport([]Row{
		{"ID": "1", "Name": "Full", "SKU": "F", "Category": "C", "Quantity": "3", "Price": "2", "Image": "x"},
		{"Name": "Partial", "Qty": "many"},
	}, importTime)

	require.Len(t, report.Products, 2)

	var rowZero []Substitution
	byField := map[string]Substitution{}
	for _, s := range report.Substitutions {
		if s.Row == 0 {
			rowZero = append(rowZero, s)
			continue
		}
		byField[s.Field] = s
	}
	assert.Empty(t, rowZero)

	assert.Equal(t, ReasonMissing, byField["id"].Reason)
	assert.Equal(t, ReasonMissing, byField["sku"].Reason)
	assert.Equal(t, "Uncategorized", byField["category"].Value)
	assert.Equal(t, ReasonNotNumeric, byField["quantity"].Reason)
	assert.Equal(t, "many", byField["quantity"].Raw)
	assert.Equal(t, ReasonMissing, byField["price"].Reason)
	assert.NotContains(t, byField, "name")
}

func TestImportRules_GeneratedSKUPattern(t *testing.T) {
	products := ImportRows([]Row{{"Name": "x"}}, importTime)
	assert.Regexp(t, regexp.MustCompile(`^IMP-\d+-0$`), products[0].SKU)
}

func TestImportRows_ExactHeaderWinsOverCaseVariant(t *testing.T) {
	for i := 0; i < 50; i++ {
		products := ImportRows([]Row{{"name": "lower", "Name": "Upper", "QTY": "3", "qty": "8"}}, importTime)

		require.Len(t, products, 1)
		assert.Equal(t, "Upper", products[0].Name)
		assert.Equal(t, 3, products[0].Quantity)
	}
}

func TestImportRows_BlankExactHeaderFallsBackToVariant(t *testing.T) {
	products := ImportRows([]Row{{"Name": "  ", "NAME": "Shouted"}}, importTime)

	require.Len(t, products, 1)
	assert.Equal(t, "Shouted", products[0].Name)
}

func TestToRow_PriceBeyondFloatPrecision(t *testing.T) {
	price := decimal.RequireFromString("12345678901234567.123456789")
	p := domain.Product{ID: "big", Name: "Ledger", Price: price}

	row := ToRow(p)
	assert.Equal(t, "12345678901234567.123456789", row[HeaderPrice])

	back := ImportRows([]Row{row}, importTime)
	require.Len(t, back, 1)
	assert.True(t, price.Equal(back[0].Price), "price %s", back[0].Price)
}
