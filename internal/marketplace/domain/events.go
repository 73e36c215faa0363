package domain

import (
	"time"
)

// ListingCreatedEvent 挂单创建事件
type ListingCreatedEvent struct {
	ListingKey  string
	Seller      string
	YTMint      string
	PaymentMint string
	Amount      string
	Price       string
	OccurredOn  time.Time
}

// ListingFilledEvent 挂单成交事件
type ListingFilledEvent struct {
	ListingKey string
	Seller     string
	Buyer      string
	YTMint     string
	Amount     string
	Price      string
	OccurredOn time.Time
}

// ListingCancelledEvent 挂单取消事件
type ListingCancelledEvent struct {
	ListingKey string
	Seller     string
	Amount     string
	OccurredOn time.Time
}
