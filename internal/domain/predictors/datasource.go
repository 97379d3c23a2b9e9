package predictors

import "time"

// Datasource points at a materialized training dataset. Location is a local
// path or a gs://bucket/key URI.
type Datasource struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID int64     `gorm:"column:company_id;not null;default:0;index" json:"company_id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Location  string    `gorm:"column:location;not null" json:"location"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Datasource) TableName() string { return "datasource" }
