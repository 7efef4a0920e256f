package services

import (
	"context"
	"errors"
	"strings"

	"github.com/diewo77/go-esign/internal/models"
	"github.com/diewo77/go-esign/validation"
	"gorm.io/gorm"
)

// Selection is the transient state of a signature send interaction. It is
// never persisted.
type Selection struct {
	OrderID       uint             `json:"order_id"`
	PartnerID     uint             `json:"partner_id"`
	Candidates    []models.Partner `json:"candidates,omitempty"`
	SignerID      uint             `json:"signer_id,omitempty"`
	Email         string           `json:"email"`
	Phone         string           `json:"phone"`
	TemplateID    uint             `json:"template_id,omitempty"`
	UpdateContact bool             `json:"update_contact"`
}

// ConfirmedSigner is the outcome of a confirmed selection.
type ConfirmedSigner struct {
	Signer   *models.Partner
	Email    string
	Phone    string
	Template *models.SignatureTemplate
}

// SignerService resolves who signs an order and with which template.
type SignerService struct {
	db        *gorm.DB
	templates *TemplateService
}

func NewSignerService(db *gorm.DB, templates *TemplateService) *SignerService {
	return &SignerService{db: db, templates: templates}
}

// Open starts a selection for an order. An individual customer is pre-selected
// as signer; a company customer yields its contacts as candidates.
func (s *SignerService) Open(ctx context.Context, orderID uint) (*Selection, error) {
	customer, err := s.customer(ctx, orderID)
	if err != nil {
		return nil, err
	}
	sel := &Selection{OrderID: orderID, PartnerID: customer.ID}
	if customer.IsCompany {
		if err := s.db.WithContext(ctx).
			Where("parent_id = ? AND type = ? AND active = ?", customer.ID, models.PartnerTypeContact, true).
			Order("name").Find(&sel.Candidates).Error; err != nil {
			return nil, err
		}
	} else {
		s.prefill(sel, customer)
	}
	if t, err := s.templates.Default(ctx); err == nil {
		sel.TemplateID = t.ID
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return sel, nil
}

// Choose sets the signer of a selection and pre-fills its contact details.
func (s *SignerService) Choose(ctx context.Context, sel *Selection, signerID uint) error {
	customer, err := s.customer(ctx, sel.OrderID)
	if err != nil {
		return err
	}
	signer, err := s.signer(ctx, customer, signerID)
	if err != nil {
		return err
	}
	sel.PartnerID = customer.ID
	s.prefill(sel, signer)
	return nil
}

func (s *SignerService) prefill(sel *Selection, p *models.Partner) {
	sel.SignerID = p.ID
	sel.Email = p.Email
	sel.Phone = p.Phone
	sel.UpdateContact = p.Email == "" || p.Phone == ""
}

// Confirm validates a selection and returns the signer to send to. The
// contact record is updated with the email and phone when UpdateContact is set.
func (s *SignerService) Confirm(ctx context.Context, sel Selection) (*ConfirmedSigner, error) {
	customer, err := s.customer(ctx, sel.OrderID)
	if err != nil {
		return nil, err
	}
	sel.Email = strings.TrimSpace(sel.Email)
	sel.Phone = strings.TrimSpace(sel.Phone)

	v := validation.Violations{}
	validation.RequiredID("signer_id", sel.SignerID, v)
	var signer *models.Partner
	if sel.SignerID != 0 {
		signer, err = s.signer(ctx, customer, sel.SignerID)
		var verr *validation.Error
		if errors.As(err, &verr) {
			for f, code := range verr.Violations {
				v[f] = code
			}
		} else if err != nil {
			return nil, err
		}
	}
	validation.Email("email", sel.Email, v)
	tmpl, err := s.templates.Resolve(ctx, sel.TemplateID)
	switch {
	case errors.Is(err, ErrNotFound) && sel.TemplateID == 0:
		v["template_id"] = "required"
	case errors.Is(err, ErrNotFound):
		v["template_id"] = "invalid_choice"
	case err != nil:
		return nil, err
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	if sel.UpdateContact && (signer.Email != sel.Email || signer.Phone != sel.Phone) {
		if err := s.db.WithContext(ctx).Model(signer).
			Updates(map[string]any{"email": sel.Email, "phone": sel.Phone}).Error; err != nil {
			return nil, err
		}
		signer.Email, signer.Phone = sel.Email, sel.Phone
	}
	return &ConfirmedSigner{Signer: signer, Email: sel.Email, Phone: sel.Phone, Template: tmpl}, nil
}

func (s *SignerService) customer(ctx context.Context, orderID uint) (*models.Partner, error) {
	var order models.SaleOrder
	if err := s.db.WithContext(ctx).Preload("Partner").First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if order.Partner == nil {
		return nil, ErrNotFound
	}
	return order.Partner, nil
}

// signer loads a partner allowed to sign for customer: the customer itself
// when it is an individual, otherwise one of its contacts.
func (s *SignerService) signer(ctx context.Context, customer *models.Partner, id uint) (*models.Partner, error) {
	if id == customer.ID && !customer.IsCompany {
		return customer, nil
	}
	var p models.Partner
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, validation.Single("signer_id", "invalid_choice")
		}
		return nil, err
	}
	if !p.IsContactOf(customer) || p.Type != models.PartnerTypeContact {
		return nil, validation.Single("signer_id", "invalid_choice")
	}
	return &p, nil
}
