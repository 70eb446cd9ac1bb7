package alert

import "strings"

// Category is one of the fixed display buckets an alert is filed under.
type Category string

const (
	Payment  Category = "결제"
	Stock    Category = "재고"
	Disposal Category = "폐기"
	General  Category = "일반"

	// All is the aggregate tab. It is a filter/count key only and is never
	// assigned to a stored alert.
	All Category = "전체"
)

// Categories returns the storable categories in display order.
func Categories() []Category {
	return []Category{Payment, Stock, Disposal, General}
}

// Valid reports whether c may be stored on an alert.
func (c Category) Valid() bool {
	switch c {
	case Payment, Stock, Disposal, General:
		return true
	}
	return false
}

// ParseCategory resolves a filter tab coming from a query string or flag.
// Korean labels and their English aliases are both accepted; the empty
// string selects All.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", string(All):
		return All, true
	case "payment", string(Payment):
		return Payment, true
	case "stock", string(Stock):
		return Stock, true
	case "disposal", string(Disposal):
		return Disposal, true
	case "general", string(General):
		return General, true
	}
	return "", false
}

// defaultSourceTypes maps raw push-channel event types onto categories.
// Keys are lower-cased.
var defaultSourceTypes = map[string]Category{
	"결제":                Payment,
	"결제완료":              Payment,
	"결제취소":              Payment,
	"결제실패":              Payment,
	"환불":                Payment,
	"payment":           Payment,
	"payment_completed": Payment,
	"payment_canceled":  Payment,
	"payment_failed":    Payment,
	"refund":            Payment,

	"재고":           Stock,
	"재고부족":         Stock,
	"품절":           Stock,
	"입고":           Stock,
	"stock":        Stock,
	"low_stock":    Stock,
	"out_of_stock": Stock,
	"restock":      Stock,

	"폐기":     Disposal,
	"폐기임박":   Disposal,
	"유통기한임박": Disposal,
	"유통기한만료": Disposal,
	"disposal": Disposal,
	"expiring": Disposal,
	"expired":  Disposal,
}

// Categorizer maps source event types to categories. A built Categorizer is
// immutable, so it can be shared and swapped atomically on config reload.
type Categorizer struct {
	table map[string]Category
}

// NewCategorizer returns the default table extended with extra aliases.
// Aliases pointing at an invalid category are ignored.
func NewCategorizer(extra map[string]Category) *Categorizer {
	table := make(map[string]Category, len(defaultSourceTypes)+len(extra))
	for k, v := range defaultSourceTypes {
		table[k] = v
	}
	for k, v := range extra {
		if !v.Valid() {
			continue
		}
		table[normalizeSourceType(k)] = v
	}
	return &Categorizer{table: table}
}

// Categorize never fails: unknown or empty source types map to General.
func (c *Categorizer) Categorize(sourceType string) Category {
	if c == nil {
		return Categorize(sourceType)
	}
	if cat, ok := c.table[normalizeSourceType(sourceType)]; ok {
		return cat
	}
	return General
}

var defaultCategorizer = NewCategorizer(nil)

// Categorize uses the built-in source type table.
func Categorize(sourceType string) Category {
	return defaultCategorizer.Categorize(sourceType)
}

func normalizeSourceType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
