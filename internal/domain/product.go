package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID         int64           `db:"id" json:"id"`
	Name       string          `db:"name" json:"name"`
	SKU        string          `db:"sku" json:"sku"`
	Price      decimal.Decimal `db:"price" json:"price"`
	Stock      int64           `db:"stock" json:"stock"`
	CategoryID int64           `db:"category_id" json:"categoryId"`
	Version    int64           `db:"version" json:"version"`
	IsActive   bool            `db:"is_active" json:"isActive"`
	DeletedAt  *time.Time      `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updatedAt"`
}

func (p *Product) IsDeleted() bool {
	return p.DeletedAt != nil
}

type PriceHistory struct {
	ID        int64           `db:"id" json:"id"`
	ProductID int64           `db:"product_id" json:"productId"`
	OldPrice  decimal.Decimal `db:"old_price" json:"oldPrice"`
	NewPrice  decimal.Decimal `db:"new_price" json:"newPrice"`
	ChangedAt time.Time       `db:"changed_at" json:"changedAt"`
}

type CreateProductInput struct {
	Name       string
	SKU        string
	Price      decimal.Decimal
	Stock      int64
	CategoryID int64
}
