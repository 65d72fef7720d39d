// Package hierarchy answers manager/subordinate questions against the
// organizational graph owned by the admin module (users.manager_id edges).
// The messaging core only reads it.
package hierarchy

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/meridian-apps/casecomms/src/api/types"
)

type Service interface {
	Manager(ctx context.Context, userID uint64) (*types.User, error)
	Subordinates(ctx context.Context, userID uint64) ([]types.User, error)
	IsSubordinateOf(ctx context.Context, userID, managerID uint64) (bool, error)

	// Derived facts consumed by the authorization gate.
	IsAdmin(ctx context.Context, userID uint64) (bool, error)
	IsTopOfHierarchy(ctx context.Context, userID uint64) (bool, error)
	IsManager(ctx context.Context, userID uint64) (bool, error)
}

type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) *DB { return &DB{db: db} }

func (h *DB) Manager(ctx context.Context, userID uint64) (*types.User, error) {
	var u types.User
	if err := h.db.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	if u.ManagerID == nil {
		return nil, nil
	}
	var mgr types.User
	if err := h.db.WithContext(ctx).First(&mgr, "id = ?", *u.ManagerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mgr, nil
}

func (h *DB) Subordinates(ctx context.Context, userID uint64) ([]types.User, error) {
	var subs []types.User
	err := h.db.WithContext(ctx).Where("manager_id = ?", userID).Find(&subs).Error
	return subs, err
}

func (h *DB) IsSubordinateOf(ctx context.Context, userID, managerID uint64) (bool, error) {
	var n int64
	err := h.db.WithContext(ctx).Model(&types.User{}).
		Where("id = ? AND manager_id = ?", userID, managerID).Count(&n).Error
	return n > 0, err
}

func (h *DB) IsAdmin(ctx context.Context, userID uint64) (bool, error) {
	var n int64
	err := h.db.WithContext(ctx).Model(&types.User{}).
		Where("id = ? AND is_admin = ?", userID, true).Count(&n).Error
	return n > 0, err
}

func (h *DB) IsTopOfHierarchy(ctx context.Context, userID uint64) (bool, error) {
	var n int64
	err := h.db.WithContext(ctx).Model(&types.User{}).
		Where("id = ? AND manager_id IS NULL", userID).Count(&n).Error
	return n > 0, err
}

func (h *DB) IsManager(ctx context.Context, userID uint64) (bool, error) {
	var n int64
	err := h.db.WithContext(ctx).Model(&types.User{}).
		Where("manager_id = ?", userID).Count(&n).Error
	return n > 0, err
}
