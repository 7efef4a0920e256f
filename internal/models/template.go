package models

import (
	"time"

	"github.com/diewo77/go-esign/validation"
)

// PageType tells where the signature field is placed in the document.
type PageType string

const (
	PageTypeLast     PageType = "last"
	PageTypeSpecific PageType = "specific"
)

// SignatureType is the signature level requested from the signature API.
type SignatureType string

const (
	SignatureTypeSimple      SignatureType = "simple"
	SignatureTypeQualified   SignatureType = "qualified"
	SignatureTypeChooseLater SignatureType = "choose_later"
)

// APIValue returns the value expected by the signature API for this type.
func (s SignatureType) APIValue() string {
	switch s {
	case SignatureTypeQualified:
		return "DIGI_GO"
	case SignatureTypeChooseLater:
		return "Later"
	default:
		return "CERTIFIED_TIMESTAMP"
	}
}

// Defaults applied to templates created without explicit values.
const (
	DefaultTemplateSequence = 10
	DefaultTemplateAxis     = 100
)

// SignatureTemplate is a reusable signature placement configuration.
type SignatureTemplate struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	Name     string `gorm:"size:255;not null" json:"name"`
	Sequence int    `gorm:"not null" json:"sequence"`
	Active   bool   `gorm:"not null" json:"active"`

	// Coordinates are handed to the API unchanged.
	XAxis int `gorm:"not null" json:"x_axis"`
	YAxis int `gorm:"not null" json:"y_axis"`

	PageType      PageType      `gorm:"size:20;not null;default:'last'" json:"page_type"`
	PageNumber    int           `json:"page_number,omitempty"`
	SignatureType SignatureType `gorm:"size:20;not null;default:'simple'" json:"signature_type"`
	IsDefault     bool          `gorm:"not null;default:false" json:"is_default"`
}

// Validate checks the template fields and returns the violations found.
func (t *SignatureTemplate) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("name", t.Name, v)
	validation.NonNegativeInt("x_axis", t.XAxis, v)
	validation.NonNegativeInt("y_axis", t.YAxis, v)
	validation.OneOf("page_type", string(t.PageType), []string{string(PageTypeLast), string(PageTypeSpecific)}, v)
	validation.OneOf("signature_type", string(t.SignatureType), []string{
		string(SignatureTypeSimple), string(SignatureTypeQualified), string(SignatureTypeChooseLater),
	}, v)
	switch t.PageType {
	case PageTypeSpecific:
		validation.PositiveInt("page_number", t.PageNumber, v)
	case PageTypeLast:
		if t.PageNumber != 0 {
			v["page_number"] = "must_be_empty"
		}
	}
	return v
}

// PageFor resolves the page carrying the signature in a document of totalPages pages.
// A specific page beyond the end of the document falls back to the last page.
func (t *SignatureTemplate) PageFor(totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if t.PageType == PageTypeSpecific && t.PageNumber > 0 && t.PageNumber < totalPages {
		return t.PageNumber
	}
	return totalPages
}
