package domain

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Category classifies a holding.
type Category string

const (
	CategoryJPStock Category = "jp_stock"
	CategoryUSStock Category = "us_stock"
	CategoryFund    Category = "fund"
	CategoryCash    Category = "cash"
)

// CategoryInfo describes how a category is presented. It is a lookup table keyed by
// Category; holdings never point back at it.
type CategoryInfo struct {
	Category  Category `json:"category"`
	Name      string   `json:"name"`
	NameEn    string   `json:"nameEn"`
	Color     string   `json:"color"`
	Icon      string   `json:"icon"`
	SortOrder int      `json:"sortOrder"`
}

var categoryRegistry = []CategoryInfo{
	{Category: CategoryJPStock, Name: "日本株", NameEn: "japanese_stocks", Color: "indigo", Icon: "Building2", SortOrder: 1},
	{Category: CategoryUSStock, Name: "米国株", NameEn: "us_stocks", Color: "amber", Icon: "Globe", SortOrder: 2},
	{Category: CategoryFund, Name: "投資信託", NameEn: "investment_trusts", Color: "emerald", Icon: "TrendingUp", SortOrder: 3},
	{Category: CategoryCash, Name: "現金", NameEn: "cash", Color: "slate", Icon: "Wallet", SortOrder: 4},
}

var categoryByKey = lo.KeyBy(categoryRegistry, func(c CategoryInfo) Category { return c.Category })

// Categories returns all categories in display order.
func Categories() []CategoryInfo {
	return append([]CategoryInfo(nil), categoryRegistry...)
}

// LookupCategory returns the descriptor for c.
func LookupCategory(c Category) (CategoryInfo, bool) {
	info, ok := categoryByKey[c]
	return info, ok
}

// ParseCategory validates a category key.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := categoryByKey[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// NativeCurrency is the currency quotes for this category are denominated in.
func (c Category) NativeCurrency() Currency {
	if c == CategoryUSStock {
		return CurrencyUSD
	}
	return CurrencyJPY
}
