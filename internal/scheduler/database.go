package scheduler

import (
	"errors"

	"gorm.io/gorm"

	"github.com/bonsaidca/bonsai/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetDispatchableSchedules returns all schedules eligible for the due check:
// active and not paused. The time predicate itself is evaluated in memory.
func (d *Database) GetDispatchableSchedules() ([]types.Schedule, error) {
	var schedules []types.Schedule
	if err := d.db.Where("is_active = ? AND is_paused = ?", true, false).Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// GetLiveOrders returns orders still open on an exchange: a non-null exchange
// order id and is_live set. Terminal orders never reappear here, which is
// what makes reconciliation idempotent.
func (d *Database) GetLiveOrders() ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.Where("exchange_order_id IS NOT NULL AND is_live = ?", true).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (d *Database) GetCredential(credentialID string) (*types.Credential, error) {
	var credential types.Credential
	if err := d.db.Where("credential_id = ?", credentialID).First(&credential).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &credential, nil
}

func (d *Database) UpdateSchedule(schedule *types.Schedule) error {
	return d.db.Save(schedule).Error
}

func (d *Database) UpdateOrder(order *types.Order) error {
	return d.db.Save(order).Error
}
