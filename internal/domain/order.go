package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

var orderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:   {},
	OrderStatusPaid:      {},
	OrderStatusShipped:   {},
	OrderStatusCompleted: {},
	OrderStatusCanceled:  {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderStatuses[s]
	return ok
}

func ParseOrderStatus(raw string) (OrderStatus, bool) {
	s := OrderStatus(raw)
	return s, s.Valid()
}

type Order struct {
	ID        int64           `db:"id" json:"id"`
	UserID    int64           `db:"user_id" json:"userId"`
	Status    OrderStatus     `db:"status" json:"status"`
	Total     decimal.Decimal `db:"total" json:"total"`
	Version   int64           `db:"version" json:"version"`
	Items     []OrderItem     `db:"-" json:"items"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// OrderItem.UnitPrice is the product price at order time and is never recomputed.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"orderId"`
	ProductID int64           `db:"product_id" json:"productId"`
	Quantity  int64           `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unitPrice"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// OrderLine is one requested basket entry.
type OrderLine struct {
	ProductID int64
	Quantity  int64
}

func (o *Order) CalculateTotal() {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	o.Total = total
}
