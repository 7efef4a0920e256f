package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/diewo77/go-esign/internal/models"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// TemplateService stores signature templates.
type TemplateService struct {
	db *gorm.DB
}

func NewTemplateService(db *gorm.DB) *TemplateService {
	return &TemplateService{db: db}
}

// Create validates and stores a new template. Marking it default clears
// the flag on every other template.
func (s *TemplateService) Create(ctx context.Context, t *models.SignatureTemplate) error {
	t.ID = 0
	return s.save(ctx, t)
}

// Update validates and stores an existing template.
func (s *TemplateService) Update(ctx context.Context, t *models.SignatureTemplate) error {
	if t.ID == 0 {
		return ErrNotFound
	}
	if _, err := s.Get(ctx, t.ID); err != nil {
		return err
	}
	return s.save(ctx, t)
}

func (s *TemplateService) save(ctx context.Context, t *models.SignatureTemplate) error {
	if t.PageType == "" {
		t.PageType = models.PageTypeLast
	}
	if t.SignatureType == "" {
		t.SignatureType = models.SignatureTypeSimple
	}
	if !t.Active {
		// archived templates cannot stay default
		t.IsDefault = false
	}
	if err := t.Validate().Err(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if t.ID == 0 {
			if err := tx.Create(t).Error; err != nil {
				return err
			}
		} else if err := tx.Save(t).Error; err != nil {
			return err
		}
		if t.IsDefault {
			return tx.Model(&models.SignatureTemplate{}).
				Where("id <> ? AND is_default = ?", t.ID, true).
				Update("is_default", false).Error
		}
		return nil
	})
}

// Get returns a template by id.
func (s *TemplateService) Get(ctx context.Context, id uint) (*models.SignatureTemplate, error) {
	var t models.SignatureTemplate
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// List returns templates ordered by sequence then name.
func (s *TemplateService) List(ctx context.Context, includeArchived bool) ([]models.SignatureTemplate, error) {
	q := s.db.WithContext(ctx).Order("sequence, name")
	if !includeArchived {
		q = q.Where("active = ?", true)
	}
	var out []models.SignatureTemplate
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Default returns the active default template, ErrNotFound when none is marked.
func (s *TemplateService) Default(ctx context.Context) (*models.SignatureTemplate, error) {
	var t models.SignatureTemplate
	err := s.db.WithContext(ctx).
		Where("is_default = ? AND active = ?", true, true).
		Order("sequence, name").
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Resolve returns the template with the given id, or the default one when id is zero.
func (s *TemplateService) Resolve(ctx context.Context, id uint) (*models.SignatureTemplate, error) {
	if id == 0 {
		return s.Default(ctx)
	}
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Active {
		return nil, ErrNotFound
	}
	return t, nil
}

// Delete removes a template unless a sent signature request references it.
func (s *TemplateService) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.SignatureTemplate
		if err := tx.First(&t, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		var refs int64
		if err := tx.Model(&models.SignatureHistory{}).Where("template_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs == 0 {
			if err := tx.Model(&models.SaleOrder{}).Where("signature_template_id = ?", id).Count(&refs).Error; err != nil {
				return err
			}
		}
		if refs > 0 {
			return ErrTemplateInUse
		}
		return tx.Delete(&t).Error
	})
}

// TemplatePreset is the YAML form of a template.
type TemplatePreset struct {
	Name          string `yaml:"name"`
	Sequence      *int   `yaml:"sequence"`
	XAxis         *int   `yaml:"x_axis"`
	YAxis         *int   `yaml:"y_axis"`
	PageType      string `yaml:"page_type"`
	PageNumber    int    `yaml:"page_number"`
	SignatureType string `yaml:"signature_type"`
	Default       bool   `yaml:"default"`
}

// Template converts the preset, applying defaults to missing values.
func (p TemplatePreset) Template() models.SignatureTemplate {
	t := models.SignatureTemplate{
		Name:          p.Name,
		Sequence:      models.DefaultTemplateSequence,
		Active:        true,
		XAxis:         models.DefaultTemplateAxis,
		YAxis:         models.DefaultTemplateAxis,
		PageType:      models.PageType(p.PageType),
		PageNumber:    p.PageNumber,
		SignatureType: models.SignatureType(p.SignatureType),
		IsDefault:     p.Default,
	}
	if p.Sequence != nil {
		t.Sequence = *p.Sequence
	}
	if p.XAxis != nil {
		t.XAxis = *p.XAxis
	}
	if p.YAxis != nil {
		t.YAxis = *p.YAxis
	}
	return t
}

// ImportPresets creates the templates of a YAML file whose name is not used yet.
// It returns the number of templates created.
func (s *TemplateService) ImportPresets(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read template presets: %w", err)
	}
	var doc struct {
		Templates []TemplatePreset `yaml:"templates"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("parse template presets %s: %w", path, err)
	}
	created := 0
	for _, p := range doc.Templates {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.SignatureTemplate{}).Where("name = ?", p.Name).Count(&count).Error; err != nil {
			return created, err
		}
		if count > 0 {
			continue
		}
		t := p.Template()
		if err := s.Create(ctx, &t); err != nil {
			return created, fmt.Errorf("preset %q: %w", p.Name, err)
		}
		created++
	}
	return created, nil
}
