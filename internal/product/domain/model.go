package domain

// Product is a row of the product dimension keyed by stock code.
type Product struct {
	StockCode   string `gorm:"column:stock_code;primaryKey;size:32" json:"stock_code"`
	Description string `gorm:"column:description;type:text;not null" json:"description"`
}

func (Product) TableName() string { return "product" }
