package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// PartnerTypeContact marks a person attached to a company partner.
const PartnerTypeContact = "contact"

// Partner is a customer: either a company or an individual, possibly a
// contact person under a company.
type Partner struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name      string `gorm:"size:255;not null" json:"name"`
	Email     string `gorm:"size:255" json:"email,omitempty"`
	Phone     string `gorm:"size:50" json:"phone,omitempty"`
	IsCompany bool   `gorm:"not null;default:false" json:"is_company"`
	Type      string `gorm:"size:20;not null;default:'contact'" json:"type"`
	Active    bool   `gorm:"not null" json:"active"`

	ParentID *uint     `gorm:"index" json:"parent_id,omitempty"`
	Parent   *Partner  `gorm:"foreignKey:ParentID" json:"-"`
	Children []Partner `gorm:"foreignKey:ParentID" json:"-"`
}

// SplitName splits the display name at the first space into first and last name.
func (p *Partner) SplitName() (first, last string) {
	name := strings.TrimSpace(p.Name)
	if i := strings.Index(name, " "); i >= 0 {
		return name[:i], strings.TrimSpace(name[i+1:])
	}
	return name, ""
}

// IsContactOf reports whether p is a contact person of the company c.
func (p *Partner) IsContactOf(c *Partner) bool {
	return p.ParentID != nil && *p.ParentID == c.ID && p.ID != c.ID
}
