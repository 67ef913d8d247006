package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/voltcart/voltcart-backend/pkg/enums"
)

// Product is a retail inventory-bearing item. StockQty is the total stock the
// seller listed; SoldQty is committed stock from finalized orders. Available
// capacity is StockQty - SoldQty - active unexpired reservations, computed
// under a row lock.
type Product struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StoreID uuid.UUID `gorm:"column:store_id;type:uuid;not null;index"`

	Title         string         `gorm:"column:title;not null"`
	PriceMinor    int64          `gorm:"column:price_minor;not null"`
	PriceCurrency enums.Currency `gorm:"column:price_currency;type:text;not null;default:'JPY'"`

	StockQty int `gorm:"column:stock_qty;not null;default:0"`
	SoldQty  int `gorm:"column:sold_qty;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
