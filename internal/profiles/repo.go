package profiles

import (
	"context"
	"errors"

	"github.com/angelmondragon/miravo-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"gorm.io/gorm"
)

// Repository exposes profile persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a profiles repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByUserID returns CodeNotFound when the user has no profile.
func (r *Repository) FindByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	return &profile, nil
}

func (r *Repository) Create(ctx context.Context, profile *models.Profile) error {
	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create profile")
	}
	return nil
}

// Update applies column updates to the user's profile.
func (r *Repository) Update(ctx context.Context, userID string, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("user_id = ?", userID).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update profile")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}
	return nil
}

// SetShopifyCustomerID links the profile to its commerce customer.
func (r *Repository) SetShopifyCustomerID(ctx context.Context, userID, customerID string) error {
	return r.Update(ctx, userID, map[string]any{"shopify_customer_id": customerID})
}
