package domain

import "github.com/shopspring/decimal"

const (
	TopicProductEvents = "product_events"
	TopicOrderEvents   = "order_events"

	AggregateProduct = "product"
	AggregateOrder   = "order"

	EventProductCreated      = "ProductCreated"
	EventProductPriceChanged = "ProductPriceChanged"
	EventProductDeleted      = "ProductDeleted"
	EventOrderCreated        = "OrderCreated"
	EventOrderStatusChanged  = "OrderStatusChanged"
)

type OrderItemEvent struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderCreatedEvent struct {
	OrderID int64            `json:"order_id"`
	UserID  int64            `json:"user_id"`
	Total   decimal.Decimal  `json:"total"`
	Items   []OrderItemEvent `json:"items"`
}

type OrderStatusChangedEvent struct {
	OrderID int64       `json:"order_id"`
	Status  OrderStatus `json:"status"`
	Version int64       `json:"version"`
}

type ProductCreatedEvent struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Price     decimal.Decimal `json:"price"`
	Stock     int64           `json:"stock"`
}

type ProductPriceChangedEvent struct {
	ProductID int64           `json:"product_id"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	Version   int64           `json:"version"`
}

type ProductDeletedEvent struct {
	ProductID int64 `json:"product_id"`
}
