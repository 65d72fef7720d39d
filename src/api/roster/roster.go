// Package roster reads the user/role/team directory owned by the platform's
// admin module. The messaging core consumes it for membership snapshots and
// live access checks; it never writes these tables.
package roster

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/meridian-apps/casecomms/src/api/apperr"
	"github.com/meridian-apps/casecomms/src/api/types"
)

type Directory interface {
	UserByID(ctx context.Context, id uint64) (*types.User, error)
	ActiveUserIDs(ctx context.Context) ([]uint64, error)
	RoleByID(ctx context.Context, id uint64) (*types.Role, error)
	TeamByID(ctx context.Context, id uint64) (*types.Team, error)
	RoleHolderIDs(ctx context.Context, roleID uint64) ([]uint64, error)
	TeamMemberIDs(ctx context.Context, teamID uint64) ([]uint64, error)
	RoleHolderIDsByName(ctx context.Context, name string) ([]uint64, error)
	TeamMemberIDsByName(ctx context.Context, name string) ([]uint64, error)
	UserHoldsRoleNamed(ctx context.Context, userID uint64, name string) (bool, error)
	UserInTeamNamed(ctx context.Context, userID uint64, name string) (bool, error)
}

type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) *DB { return &DB{db: db} }

func (d *DB) UserByID(ctx context.Context, id uint64) (*types.User, error) {
	var u types.User
	if err := d.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (d *DB) ActiveUserIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := d.db.WithContext(ctx).Model(&types.User{}).Where("active = ?", true).Pluck("id", &ids).Error
	return ids, err
}

func (d *DB) RoleByID(ctx context.Context, id uint64) (*types.Role, error) {
	var r types.Role
	if err := d.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (d *DB) TeamByID(ctx context.Context, id uint64) (*types.Team, error) {
	var t types.Team
	if err := d.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (d *DB) RoleHolderIDs(ctx context.Context, roleID uint64) ([]uint64, error) {
	var ids []uint64
	err := d.db.WithContext(ctx).Model(&types.User{}).
		Where("role_id = ? AND active = ?", roleID, true).Pluck("id", &ids).Error
	return ids, err
}

func (d *DB) TeamMemberIDs(ctx context.Context, teamID uint64) ([]uint64, error) {
	var ids []uint64
	err := d.db.WithContext(ctx).Model(&types.User{}).
		Where("team_id = ? AND active = ?", teamID, true).Pluck("id", &ids).Error
	return ids, err
}

func (d *DB) RoleHolderIDsByName(ctx context.Context, name string) ([]uint64, error) {
	var ids []uint64
	err := d.db.WithContext(ctx).Model(&types.User{}).
		Joins("JOIN roles ON roles.id = users.role_id").
		Where("roles.name = ? AND users.active = ?", name, true).
		Pluck("users.id", &ids).Error
	return ids, err
}

func (d *DB) TeamMemberIDsByName(ctx context.Context, name string) ([]uint64, error) {
	var ids []uint64
	err := d.db.WithContext(ctx).Model(&types.User{}).
		Joins("JOIN teams ON teams.id = users.team_id").
		Where("teams.name = ? AND users.active = ?", name, true).
		Pluck("users.id", &ids).Error
	return ids, err
}

func (d *DB) UserHoldsRoleNamed(ctx context.Context, userID uint64, name string) (bool, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&types.User{}).
		Joins("JOIN roles ON roles.id = users.role_id").
		Where("users.id = ? AND roles.name = ?", userID, name).
		Count(&n).Error
	return n > 0, err
}

func (d *DB) UserInTeamNamed(ctx context.Context, userID uint64, name string) (bool, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&types.User{}).
		Joins("JOIN teams ON teams.id = users.team_id").
		Where("users.id = ? AND teams.name = ?", userID, name).
		Count(&n).Error
	return n > 0, err
}
