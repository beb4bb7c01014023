package domain

import "github.com/shopspring/decimal"

type TopProduct struct {
	Category    string          `json:"category"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Revenue     decimal.Decimal `json:"revenue"`
	Rank        int64           `json:"rankInCategory"`
}

type CustomerLTV struct {
	UserID        int64           `json:"userId"`
	Email         string          `json:"email"`
	OrdersCount   int64           `json:"ordersCount"`
	LifetimeValue decimal.Decimal `json:"lifetimeValue"`
}
