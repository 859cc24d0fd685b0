package billing

import "github.com/jdships/yodoo-rebuild/internal/domain"

// PlanConfig holds the provider ids of one plan.
type PlanConfig struct {
	ProductID string `mapstructure:"product_id"`
	PriceID   string `mapstructure:"price_id"`
}

// Catalog lists the purchasable plans.
type Catalog struct {
	plans map[domain.PlanType]domain.Plan
}

// NewCatalog builds the pro and unlimited plans.
func NewCatalog(pro, unlimited PlanConfig) *Catalog {
	return &Catalog{plans: map[domain.PlanType]domain.Plan{
		domain.PlanPro: {
			Type:        domain.PlanPro,
			Name:        "Pro",
			PriceCents:  2000,
			Interval:    "month",
			ProductID:   pro.ProductID,
			PriceID:     pro.PriceID,
			Description: "5,000 messages a month and every model",
		},
		domain.PlanUnlimited: {
			Type:        domain.PlanUnlimited,
			Name:        "Unlimited",
			PriceCents:  10000,
			Interval:    "month",
			ProductID:   unlimited.ProductID,
			PriceID:     unlimited.PriceID,
			Description: "No monthly message limit",
		},
	}}
}

// Plan returns the plan of a purchasable type.
func (c *Catalog) Plan(t domain.PlanType) (domain.Plan, bool) {
	p, ok := c.plans[t]
	return p, ok
}

// List returns the plans ordered by price.
func (c *Catalog) List() []domain.Plan {
	return []domain.Plan{c.plans[domain.PlanPro], c.plans[domain.PlanUnlimited]}
}

// PlanForProduct maps a product id to its plan. Unknown products are free.
func (c *Catalog) PlanForProduct(productID string) domain.PlanType {
	if productID == "" {
		return domain.PlanFree
	}
	for t, p := range c.plans {
		if p.ProductID == productID {
			return t
		}
	}
	return domain.PlanFree
}
