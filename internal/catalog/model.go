package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// Product is a sellable catalog entry. Document lines copy its values when created.
type Product struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Unit        string          `json:"unit"`
	VATRate     decimal.Decimal `json:"vat_rate"`
	Category    string          `json:"category"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ListFilters narrows product listings.
type ListFilters struct {
	Search   string
	Category string
	IsActive *bool
	Limit    int
	Offset   int
}

var hundred = decimal.NewFromInt(100)

func (p *Product) normalize() {
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	p.Name = strings.TrimSpace(p.Name)
	p.Unit = strings.TrimSpace(p.Unit)
	p.Category = strings.TrimSpace(p.Category)
	if p.Unit == "" {
		p.Unit = "unit"
	}
}

func (p Product) validate() error {
	if p.Code == "" {
		return shared.Validation("code", "product code is required")
	}
	if p.Name == "" {
		return shared.Validation("name", "product name is required")
	}
	if p.UnitPrice.IsNegative() {
		return shared.Validation("unit_price", "must not be negative")
	}
	if p.VATRate.IsNegative() || p.VATRate.GreaterThan(hundred) {
		return shared.Validation("vat_rate", "must be between 0 and 100")
	}
	return nil
}
