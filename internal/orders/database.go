package orders

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

func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) RecentOrders(limit int) ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.Order("created_at DESC").Limit(limit).Find(&orders).Error; err != nil {
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
