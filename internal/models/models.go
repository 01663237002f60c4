package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64           `json:"id" db:"id"`
	SKU         string          `json:"sku" db:"sku"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description,omitempty" db:"description"`
	ImageURL    string          `json:"image_url,omitempty" db:"image_url"`
	Price       decimal.Decimal `json:"price" db:"price"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	Version     int             `json:"version" db:"version"`
}

// Variant is one (color, size) combination of a product with its own stock.
type Variant struct {
	ProductID     int64     `json:"product_id" db:"product_id"`
	ColorCode     string    `json:"color_code" db:"color_code"`
	ColorName     string    `json:"color_name" db:"color_name"`
	Size          string    `json:"size" db:"size"`
	StockQuantity int       `json:"stock_quantity" db:"stock_quantity"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
	Version       int       `json:"version" db:"version"`
}

type Address struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	Address    string    `json:"address" db:"address"`
	City       string    `json:"city" db:"city"`
	Department string    `json:"department" db:"department"`
	Country    string    `json:"country" db:"country"`
	IsDefault  bool      `json:"is_default" db:"is_default"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// CartItem is a persisted line of an authenticated user's cart.
type CartItem struct {
	UserID    int64           `db:"user_id"`
	ProductID int64           `db:"product_id"`
	ColorCode string          `db:"color_code"`
	Size      string          `db:"size"`
	Quantity  int             `db:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price"`
	Name      string          `db:"name"`
	ImageURL  string          `db:"image_url"`
	ColorName string          `db:"color_name"`
	MaxStock  int             `db:"max_stock"`
	AddedAt   time.Time       `db:"added_at"`
}

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

type Coupon struct {
	ID            int64           `json:"id" db:"id"`
	Code          string          `json:"code" db:"code"`
	DiscountType  string          `json:"discount_type" db:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value" db:"discount_value"`
	UsageLimit    *int            `json:"usage_limit,omitempty" db:"usage_limit"`
	UsageCount    int             `json:"usage_count" db:"usage_count"`
	ExpiresAt     time.Time       `json:"expires_at" db:"expires_at"`
	Active        bool            `json:"active" db:"active"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

type Order struct {
	ID                  int64           `json:"id" db:"id"`
	UserID              int64           `json:"user_id" db:"user_id"`
	OrderNumber         string          `json:"order_number" db:"order_number"`
	ShippingAddressID   *int64          `json:"shipping_address_id,omitempty" db:"shipping_address_id"`
	ShippingAddressText string          `json:"shipping_address_text" db:"shipping_address_text"`
	Status              string          `json:"status" db:"status"`
	Subtotal            decimal.Decimal `json:"subtotal" db:"subtotal"`
	TaxAmount           decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	ShippingCost        decimal.Decimal `json:"shipping_cost" db:"shipping_cost"`
	TotalAmount         decimal.Decimal `json:"total_amount" db:"total_amount"`
	CouponID            *int64          `json:"coupon_id,omitempty" db:"coupon_id"`
	PaymentReference    string          `json:"payment_reference" db:"payment_reference"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
	Version             int             `json:"version" db:"version"`
	Items               []OrderItem     `json:"items,omitempty" db:"-"`
}

// OrderItem.UnitPrice is frozen at purchase time and never recomputed.
type OrderItem struct {
	ID        int64           `json:"id" db:"id"`
	OrderID   int64           `json:"order_id" db:"order_id"`
	ProductID int64           `json:"product_id" db:"product_id"`
	ColorCode string          `json:"color_code" db:"color_code"`
	Size      string          `json:"size" db:"size"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal" db:"subtotal"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

const (
	OrderStatusPending    = "pending"
	OrderStatusPaid       = "paid"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)
