package executor

import (
	"gorm.io/gorm"

	"github.com/bonsaidca/bonsai/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

func (d *Database) UpdateSchedule(schedule *types.Schedule) error {
	return d.db.Save(schedule).Error
}
