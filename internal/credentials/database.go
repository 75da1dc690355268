package credentials

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

func (d *Database) CreateCredential(credential *types.Credential) error {
	return d.db.Create(credential).Error
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

func (d *Database) ListCredentials() ([]types.Credential, error) {
	var creds []types.Credential
	if err := d.db.Order("exchange").Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}

func (d *Database) GetSchedules(credentialID string) ([]types.Schedule, error) {
	var schedules []types.Schedule
	if err := d.db.Where("credential_id = ?", credentialID).Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func (d *Database) CountScheduleOrders(scheduleID string) (int64, error) {
	var count int64
	if err := d.db.Model(&types.Order{}).Where("schedule_id = ?", scheduleID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (d *Database) RecentOrders(credentialID string, limit int) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.Where("credential_id = ?", credentialID).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (d *Database) RetireSchedule(schedule *types.Schedule) error {
	schedule.IsActive = false
	return d.db.Save(schedule).Error
}

func (d *Database) DeleteSchedule(schedule *types.Schedule) error {
	return d.db.Unscoped().Delete(schedule).Error
}

func (d *Database) DeleteCredential(credential *types.Credential) error {
	return d.db.Unscoped().Delete(credential).Error
}
