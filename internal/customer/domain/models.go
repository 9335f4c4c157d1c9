package domain

// Customer is a row of the customer dimension. Country is the first value
// seen for the id and is never updated afterwards.
type Customer struct {
	CustomerID string `gorm:"column:customer_id;primaryKey;size:32" json:"customer_id"`
	Country    string `gorm:"column:country;not null" json:"country"`
}

func (Customer) TableName() string {
	return "customer"
}
