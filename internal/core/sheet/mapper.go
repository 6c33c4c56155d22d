// Package sheet maps products to and from loosely typed spreadsheet rows.
//
// Export always produces the same header layout. Import is permissive: each
// product field accepts several header spellings, matched case-insensitively,
// and anything missing or unusable falls back to a default instead of
// rejecting the row.
package sheet

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storeflow/internal/core/domain"
)

// SheetName is the worksheet name used on export.
const SheetName = "Inventory Master"

// Export column headers.
const (
	HeaderID       = "ID"
	HeaderName     = "Product Name"
	HeaderSKU      = "SKU"
	HeaderCategory = "Category"
	HeaderQuantity = "Quantity"
	HeaderPrice    = "Price"
	HeaderMinLevel = "Min Level"
	HeaderImageURL = "Image URL"
)

// ExportHeaders is the stable column order of an exported sheet.
var ExportHeaders = []string{
	HeaderID, HeaderName, HeaderSKU, HeaderCategory,
	HeaderQuantity, HeaderPrice, HeaderMinLevel, HeaderImageURL,
}

// Row is one sheet row keyed by header. Values are strings, numbers or nil.
type Row map[string]any

// ToRow converts a product to its export row.
func ToRow(p domain.Product) Row {
	return Row{
		HeaderID:       p.ID,
		HeaderName:     p.Name,
		HeaderSKU:      p.SKU,
		HeaderCategory: p.Category,
		HeaderQuantity: p.Quantity,
		HeaderPrice:    priceCell(p.Price),
		HeaderMinLevel: p.MinLevel,
		HeaderImageURL: p.ImageURL,
	}
}

// priceCell keeps prices numeric when the shortest float64 form reads back
// as the same decimal and falls back to the decimal text otherwise.
func priceCell(d decimal.Decimal) any {
	f := d.InexactFloat64()
	if decimal.NewFromFloat(f).Equal(d) {
		return f
	}
	return d.String()
}

// ExportRows converts products in order.
func ExportRows(products []domain.Product) []Row {
	rows := make([]Row, 0, len(products))
	for _, p := range products {
		rows = append(rows, ToRow(p))
	}
	return rows
}

// Substitution records one field that did not come from usable source data.
type Substitution struct {
	Row    int    `json:"row"` // zero-based data row index
	Field  string `json:"field"`
	Raw    string `json:"raw,omitempty"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

const (
	ReasonMissing    = "missing"
	ReasonNotNumeric = "not a usable number"
)

// ImportReport is the outcome of a validated import.
type ImportReport struct {
	Products      []domain.Product `json:"products"`
	Substitutions []Substitution   `json:"substitutions"`
}

// fieldRule maps one product field to its accepted headers.
// apply returns false when raw could not be used and a fallback was stored instead.
type fieldRule struct {
	field    string
	aliases  []string
	fallback func(index int, now time.Time) string
	apply    func(p *domain.Product, raw string) bool
}

func constant(v string) func(int, time.Time) string {
	return func(int, time.Time) string { return v }
}

var importRules = []fieldRule{
	{
		field:   "id",
		aliases: []string{"ID", "Id"},
		fallback: func(i int, now time.Time) string {
			return strconv.FormatInt(now.UnixMilli()+int64(i), 10)
		},
		apply: func(p *domain.Product, raw string) bool { p.ID = raw; return true },
	},
	{
		field:    "name",
		aliases:  []string{"Name", "Product", "Item Name", HeaderName},
		fallback: constant("Untitled"),
		apply:    func(p *domain.Product, raw string) bool { p.Name = raw; return true },
	},
	{
		field:   "sku",
		aliases: []string{"SKU", "Code"},
		fallback: func(i int, now time.Time) string {
			return fmt.Sprintf("IMP-%d-%d", now.UnixMilli(), i)
		},
		apply: func(p *domain.Product, raw string) bool { p.SKU = raw; return true },
	},
	{
		field:    "category",
		aliases:  []string{"Category", "Group"},
		fallback: constant("Uncategorized"),
		apply:    func(p *domain.Product, raw string) bool { p.Category = raw; return true },
	},
	{
		field:    "quantity",
		aliases:  []string{"Quantity", "Qty", "Stock"},
		fallback: constant("0"),
		apply: func(p *domain.Product, raw string) bool {
			var ok bool
			p.Quantity, ok = domain.ParseQuantity(raw)
			return ok
		},
	},
	{
		field:    "price",
		aliases:  []string{"Price", "Rate"},
		fallback: constant("0"),
		apply: func(p *domain.Product, raw string) bool {
			var ok bool
			p.Price, ok = domain.ParsePrice(raw)
			return ok
		},
	},
	{
		field:    "imageUrl",
		aliases:  []string{"Image", HeaderImageURL},
		fallback: constant(""),
		apply:    func(p *domain.Product, raw string) bool { p.ImageURL = raw; return true },
	},
}

// ImportRows converts rows to products. It never rejects a row.
func ImportRows(rows []Row, now time.Time) []domain.Product {
	return ValidateImport(rows, now).Products
}

// ValidateImport converts rows like ImportRows and also reports every
// substituted field. Min level is not read from the source and is not reported.
func ValidateImport(rows []Row, now time.Time) ImportReport {
	report := ImportReport{
		Products:      make([]domain.Product, 0, len(rows)),
		Substitutions: []Substitution{},
	}

	for i, row := range rows {
		p := domain.Product{MinLevel: domain.DefaultMinLevel}
		lookup := foldKeys(row)

		for _, rule := range importRules {
			raw, found := lookup.find(rule.aliases)
			if !found {
				value := rule.fallback(i, now)
				rule.apply(&p, value)
				report.Substitutions = append(report.Substitutions, Substitution{
					Row: i, Field: rule.field, Value: value, Reason: ReasonMissing,
				})
				continue
			}
			if !rule.apply(&p, raw) {
				report.Substitutions = append(report.Substitutions, Substitution{
					Row: i, Field: rule.field, Raw: raw, Value: "0", Reason: ReasonNotNumeric,
				})
			}
		}

		report.Products = append(report.Products, p)
	}

	return report
}

// rowLookup resolves header aliases exactly first, then case-insensitively.
type rowLookup struct {
	exact  map[string]string
	folded map[string]string
}

// foldKeys indexes row by trimmed header. Headers differing only in case fold
// to the first non-blank one in sorted order.
func foldKeys(row Row) rowLookup {
	l := rowLookup{
		exact:  make(map[string]string, len(row)),
		folded: make(map[string]string, len(row)),
	}
	for _, k := range slices.Sorted(maps.Keys(row)) {
		key := strings.TrimSpace(k)
		text := cellText(row[k])
		if l.exact[key] == "" {
			l.exact[key] = text
		}
		lower := strings.ToLower(key)
		if l.folded[lower] == "" {
			l.folded[lower] = text
		}
	}
	return l
}

// find returns the first alias holding a non-blank value.
func (l rowLookup) find(aliases []string) (string, bool) {
	for _, a := range aliases {
		if v := l.exact[a]; v != "" {
			return v, true
		}
		if v := l.folded[strings.ToLower(a)]; v != "" {
			return v, true
		}
	}
	return "", false
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
