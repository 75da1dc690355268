package schedules

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

func (d *Database) CreateSchedule(schedule *types.Schedule) error {
	return d.db.Create(schedule).Error
}

func (d *Database) GetSchedule(scheduleID string) (*types.Schedule, error) {
	var schedule types.Schedule
	if err := d.db.Where("schedule_id = ?", scheduleID).First(&schedule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &schedule, nil
}

func (d *Database) UpdateSchedule(schedule *types.Schedule) error {
	return d.db.Save(schedule).Error
}

func (d *Database) DeleteSchedule(schedule *types.Schedule) error {
	return d.db.Unscoped().Delete(schedule).Error
}

// ListByCredential returns the credential's visible (active) schedules.
func (d *Database) ListByCredential(credentialID string) ([]types.Schedule, error) {
	var schedules []types.Schedule
	err := d.db.Where("credential_id = ? AND is_active = ?", credentialID, true).
		Order("created_at").
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

func (d *Database) CountOrders(scheduleID string) (int64, error) {
	var count int64
	if err := d.db.Model(&types.Order{}).Where("schedule_id = ?", scheduleID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
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
