// Package profiles owns the storefront account profile and keeps the
// commerce customer's name in step with it.
package profiles

import (
	"context"
	"strings"

	"github.com/angelmondragon/miravo-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
)

// CustomerSync pushes profile changes to the commerce customer record.
type CustomerSync interface {
	CreateCustomer(ctx context.Context, userID, email, fullName string) error
	UpdateCustomerName(ctx context.Context, customerID, fullName string) error
}

// Update lists the editable profile fields. Nil fields are left unchanged.
type Update struct {
	FullName  *string `json:"full_name" validate:"omitempty,max=200"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url,max=2048"`
}

func (u Update) empty() bool {
	return u.FullName == nil && u.AvatarURL == nil
}

type Service struct {
	repo    *Repository
	sync    CustomerSync
	avatars AvatarStore
	logg    *logger.Logger
}

func NewService(repo *Repository, sync CustomerSync, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, sync: sync, logg: logg}
}

// Get returns the user's profile, or nil when none exists yet.
func (s *Service) Get(ctx context.Context, userID string) (*models.Profile, error) {
	profile, err := s.repo.FindByUserID(ctx, userID)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, nil
	}
	return profile, err
}

// CreateForSignUp writes the new user's profile and starts the commerce
// customer sync. Both steps are best effort: failures are logged and the
// sign-up proceeds.
func (s *Service) CreateForSignUp(ctx context.Context, userID, email, fullName string) {
	ctx = s.logg.WithUserID(ctx, userID)
	if existing, err := s.Get(ctx, userID); err != nil {
		s.logg.Error(ctx, "profile.lookup.failed", err)
	} else if existing == nil {
		profile := &models.Profile{UserID: userID, Email: optional(email), FullName: optional(fullName)}
		if err := s.repo.Create(ctx, profile); err != nil {
			s.logg.Error(ctx, "profile.create.failed", err)
		}
	}
	if s.sync == nil {
		return
	}
	if err := s.sync.CreateCustomer(ctx, userID, email, fullName); err != nil {
		s.logg.Error(ctx, "profile.customer_sync.failed", err)
	}
}

// Update saves the changes and returns the refreshed profile. A name change
// is pushed to the linked commerce customer on a best-effort basis.
func (s *Service) Update(ctx context.Context, userID string, update Update) (*models.Profile, error) {
	if update.empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no profile fields to update")
	}
	current, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if update.FullName != nil {
		changes["full_name"] = strings.TrimSpace(*update.FullName)
	}
	if update.AvatarURL != nil {
		changes["avatar_url"] = strings.TrimSpace(*update.AvatarURL)
	}
	if err := s.repo.Update(ctx, userID, changes); err != nil {
		return nil, err
	}

	if name := changes["full_name"]; name != nil && name != "" && current.ShopifyCustomerID != nil && s.sync != nil {
		if err := s.sync.UpdateCustomerName(ctx, *current.ShopifyCustomerID, name.(string)); err != nil {
			s.logg.Error(s.logg.WithUserID(ctx, userID), "profile.customer_sync.failed", err)
		}
	}
	return s.repo.FindByUserID(ctx, userID)
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
