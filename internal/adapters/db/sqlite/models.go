package sqlite

import "time"

type NameModel struct {
	ID          uint              `gorm:"primaryKey"`
	Name        string            `gorm:"uniqueIndex;not null"`
	Owner       string            `gorm:"not null"`
	Texts       map[string]string `gorm:"serializer:json;not null"`
	Addresses   map[string]string `gorm:"serializer:json;not null"`
	Contenthash []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (NameModel) TableName() string { return "names" }
