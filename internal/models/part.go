package models

import (
	"time"
)

// Part is an inventory SKU.
type Part struct {
	ID        string    `json:"part_id"`
	Code      string    `json:"part_code"` // unique SKU
	Name      string    `json:"part_name"`
	Category  string    `json:"part_category"`
	Stock     int       `json:"part_stock"`
	MinStock  int       `json:"part_min_stock"`
	UnitPrice float64   `json:"part_unit_price"` // in USD
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLowStock reports whether stock has fallen below the configured minimum.
func (p Part) IsLowStock() bool {
	return p.Stock < p.MinStock
}

// Value is the stock value of the SKU.
func (p Part) Value() float64 {
	return float64(p.Stock) * p.UnitPrice
}

// PartUsed is a part consumed on a job.
type PartUsed struct {
	PartID string `bson:"part_id" json:"part_id"`
	Name   string `bson:"name" json:"name"`
	Code   string `bson:"code" json:"code"`
	Qty    int    `bson:"qty" json:"qty"`
}
