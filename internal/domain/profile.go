package domain

import (
	"fmt"
	"time"
)

type UserProfile struct {
	UID         string    `bson:"-" json:"uid"`
	Email       string    `bson:"email" json:"email"`
	DisplayName string    `bson:"display_name" json:"display_name"`
	PhotoURL    string    `bson:"photo_url" json:"photo_url"`
	Role        Role      `bson:"role" json:"role"`
	Provider    string    `bson:"provider,omitempty" json:"provider,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

func (p UserProfile) Validate() error {
	if p.UID == "" {
		return fmt.Errorf("%w: profile without uid", ErrMalformedRecord)
	}
	if !p.Role.Valid() {
		return fmt.Errorf("%w: profile %s has role %q", ErrMalformedRecord, p.UID, p.Role)
	}
	return nil
}
