package members

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bv-engine/pkg/db/models"
	"github.com/angelmondragon/bv-engine/pkg/enums"
)

// MemberDTO is the transport shape of a member.
type MemberDTO struct {
	ID           uuid.UUID       `json:"id"`
	ReferralCode string          `json:"referral_code"`
	DisplayName  string          `json:"display_name"`
	ParentID     *uuid.UUID      `json:"parent_id,omitempty"`
	Position     *enums.Position `json:"position,omitempty"`
	SponsorID    *uuid.UUID      `json:"sponsor_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RegisterInput carries a new member's registration. An empty
// SponsorReferralCode registers a root member.
type RegisterInput struct {
	DisplayName         string `json:"display_name" validate:"required,max=120"`
	SponsorReferralCode string `json:"referral_code,omitempty" validate:"omitempty,alphanum,len=8"`
}

func FromModel(m *models.Member) *MemberDTO {
	if m == nil {
		return nil
	}
	return &MemberDTO{
		ID:           m.ID,
		ReferralCode: m.ReferralCode,
		DisplayName:  m.DisplayName,
		ParentID:     m.ParentID,
		Position:     m.Position,
		SponsorID:    m.SponsorID,
		CreatedAt:    m.CreatedAt,
	}
}
