package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Profile is the storefront account record keyed by the auth user id.
type Profile struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID            string    `gorm:"column:user_id;not null;uniqueIndex:profiles_user_id_key" json:"user_id"`
	Email             *string   `gorm:"column:email" json:"email"`
	FullName          *string   `gorm:"column:full_name" json:"full_name"`
	AvatarURL         *string   `gorm:"column:avatar_url" json:"avatar_url"`
	ShopifyCustomerID *string   `gorm:"column:shopify_customer_id" json:"shopify_customer_id"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

func (p *Profile) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
