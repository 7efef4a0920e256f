package services

import (
	"context"
	"net/url"
	"strings"

	"github.com/diewo77/go-esign/internal/esign"
	"github.com/diewo77/go-esign/internal/models"
	"github.com/diewo77/go-esign/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	SettingBaseURL     = "esign.base_url"
	SettingBearerToken = "esign.bearer_token"
)

// ESignSettings is the admin view of the signature API settings. The token
// itself is never returned.
type ESignSettings struct {
	BaseURL  string `json:"base_url"`
	TokenSet bool   `json:"token_set"`
}

// SettingsService stores the signature API settings. Values missing from
// the database fall back to the process configuration.
type SettingsService struct {
	db       *gorm.DB
	fallback esign.Credentials
}

func NewSettingsService(db *gorm.DB, fallback esign.Credentials) *SettingsService {
	return &SettingsService{db: db, fallback: fallback}
}

// Credentials implements esign.CredentialSource.
func (s *SettingsService) Credentials(ctx context.Context) (esign.Credentials, error) {
	var rows []models.Setting
	if err := s.db.WithContext(ctx).
		Where("key IN ?", []string{SettingBaseURL, SettingBearerToken}).
		Find(&rows).Error; err != nil {
		return esign.Credentials{}, err
	}
	creds := s.fallback
	for _, r := range rows {
		if r.Value == "" {
			continue
		}
		switch r.Key {
		case SettingBaseURL:
			creds.BaseURL = r.Value
		case SettingBearerToken:
			creds.Token = r.Value
		}
	}
	return creds, nil
}

func (s *SettingsService) View(ctx context.Context) (ESignSettings, error) {
	creds, err := s.Credentials(ctx)
	if err != nil {
		return ESignSettings{}, err
	}
	return ESignSettings{BaseURL: creds.BaseURL, TokenSet: creds.Token != ""}, nil
}

// Update stores the base url and token. An empty token keeps the current one.
func (s *SettingsService) Update(ctx context.Context, baseURL, token string) error {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	token = strings.TrimSpace(token)
	current, err := s.Credentials(ctx)
	if err != nil {
		return err
	}

	v := validation.Violations{}
	validation.Required("base_url", baseURL, v)
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			v["base_url"] = "invalid_url"
		}
	}
	if token == "" && current.Token == "" {
		v["token"] = "required"
	}
	if err := v.Err(); err != nil {
		return err
	}

	rows := []models.Setting{{Key: SettingBaseURL, Value: baseURL}}
	if token != "" {
		rows = append(rows, models.Setting{Key: SettingBearerToken, Value: token})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
}
