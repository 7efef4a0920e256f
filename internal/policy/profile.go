package policy

import (
	"context"
	"errors"

	"github.com/diewo77/go-esign/internal/models"
	"gorm.io/gorm"
)

// Profile is the set of permissions a user holds.
type Profile interface {
	Name() string
	HasPermission(requested Permission) bool
}

// ProfileResolver returns the profile of a user, nil when the user has none.
type ProfileResolver interface {
	Resolve(ctx context.Context, userID uint) (Profile, error)
}

// StaticProfile is an in-memory profile.
type StaticProfile struct {
	name        string
	permissions []Permission
}

func NewStaticProfile(name string, permissions ...Permission) *StaticProfile {
	return &StaticProfile{name: name, permissions: permissions}
}

func (p *StaticProfile) Name() string { return p.name }

func (p *StaticProfile) HasPermission(requested Permission) bool {
	for _, perm := range p.permissions {
		if perm.Matches(requested) {
			return true
		}
	}
	return false
}

// DBProfileResolver loads profiles and their permissions with gorm.
type DBProfileResolver struct {
	db *gorm.DB
}

func NewDBProfileResolver(db *gorm.DB) *DBProfileResolver {
	return &DBProfileResolver{db: db}
}

// Resolve returns nil for unknown or inactive users and for users without profile.
func (r *DBProfileResolver) Resolve(ctx context.Context, userID uint) (Profile, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Profile.Permissions").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !user.Active || user.Profile == nil {
		return nil, nil
	}
	perms := make([]Permission, len(user.Profile.Permissions))
	for i, p := range user.Profile.Permissions {
		perms[i] = Permission(p.Code())
	}
	return NewStaticProfile(user.Profile.Name, perms...), nil
}
