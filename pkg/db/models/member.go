package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bv-engine/pkg/enums"
)

// Member is a node in the binary referral tree. ParentID and Position are both
// nil for a root member and both set otherwise; neither changes after insert.
type Member struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ReferralCode string          `gorm:"column:referral_code;not null;uniqueIndex:ux_members_referral_code"`
	DisplayName  string          `gorm:"column:display_name;not null"`
	ParentID     *uuid.UUID      `gorm:"column:parent_id;type:uuid"`
	Position     *enums.Position `gorm:"column:position;type:member_position"`
	SponsorID    *uuid.UUID      `gorm:"column:sponsor_id;type:uuid"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Member) TableName() string {
	return "members"
}

func (m *Member) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// IsRoot reports whether the member sits at the top of its tree.
func (m *Member) IsRoot() bool {
	return m.ParentID == nil
}
