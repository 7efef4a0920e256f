package db

import (
	"context"
	"errors"
	"strings"

	"github.com/diewo77/go-esign/internal/models"
	"github.com/diewo77/go-esign/internal/policy"
	"github.com/diewo77/go-esign/internal/services"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Profile names created by Seed.
const (
	ProfileAdmin    = "admin"
	ProfileSalesman = "salesman"
)

// SeedOptions controls what Seed creates besides permissions and profiles.
type SeedOptions struct {
	AdminEmail    string
	AdminPassword string
	// TemplatesFile is a YAML file of template presets, skipped when empty.
	TemplatesFile string
	// Demo adds a customer company with a contact and a quotation.
	Demo bool
}

var permissionSeeds = []models.Permission{
	{ResourceType: policy.Wildcard, Action: policy.Wildcard, Description: "Full access"},
	{ResourceType: policy.ResourceTemplate, Action: string(policy.ActionList), Description: "List signature templates"},
	{ResourceType: policy.ResourceTemplate, Action: string(policy.ActionView), Description: "View a signature template"},
	{ResourceType: policy.ResourceTemplate, Action: string(policy.ActionCreate), Description: "Create signature templates"},
	{ResourceType: policy.ResourceTemplate, Action: string(policy.ActionUpdate), Description: "Edit signature templates"},
	{ResourceType: policy.ResourceTemplate, Action: string(policy.ActionDelete), Description: "Delete signature templates"},
	{ResourceType: policy.ResourceSaleOrder, Action: string(policy.ActionView), Description: "View orders and their signature state"},
	{ResourceType: policy.ResourceSaleOrder, Action: string(policy.ActionSign), Description: "Send orders for signature"},
	{ResourceType: policy.ResourceSettings, Action: string(policy.ActionView), Description: "View signature api settings"},
	{ResourceType: policy.ResourceSettings, Action: string(policy.ActionUpdate), Description: "Edit signature api settings"},
}

var profileSeeds = map[string][]string{
	ProfileAdmin: {string(policy.PermissionSuperAdmin)},
	ProfileSalesman: {
		"signature_template:list", "signature_template:view",
		"sale_order:view", "sale_order:sign",
	},
}

// Seed creates reference data. Running it twice changes nothing.
func Seed(ctx context.Context, gdb *gorm.DB, opts SeedOptions) error {
	gdb = gdb.WithContext(ctx)
	perms := map[string]models.Permission{}
	for _, p := range permissionSeeds {
		if err := gdb.Where(models.Permission{ResourceType: p.ResourceType, Action: p.Action}).
			Attrs(models.Permission{Description: p.Description}).
			FirstOrCreate(&p).Error; err != nil {
			return pkgerrors.Wrapf(err, "seed permission %s", p.Code())
		}
		perms[p.Code()] = p
	}

	for name, codes := range profileSeeds {
		profile := models.Profile{Name: name, IsSystem: true}
		if err := gdb.Where(models.Profile{Name: name}).Attrs(profile).FirstOrCreate(&profile).Error; err != nil {
			return pkgerrors.Wrapf(err, "seed profile %s", name)
		}
		list := make([]models.Permission, 0, len(codes))
		for _, c := range codes {
			list = append(list, perms[c])
		}
		if err := gdb.Model(&profile).Association("Permissions").Replace(list); err != nil {
			return pkgerrors.Wrapf(err, "seed profile %s permissions", name)
		}
	}

	if opts.AdminEmail != "" {
		if err := seedAdmin(gdb, opts.AdminEmail, opts.AdminPassword); err != nil {
			return err
		}
	}
	if opts.TemplatesFile != "" {
		n, err := services.NewTemplateService(gdb).ImportPresets(ctx, opts.TemplatesFile)
		if err != nil {
			return err
		}
		log.Info("template presets imported", "file", opts.TemplatesFile, "created", n)
	}
	if opts.Demo {
		return seedDemo(gdb)
	}
	return nil
}

func seedAdmin(gdb *gorm.DB, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	var existing models.User
	err := gdb.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if len(password) < 8 {
		return pkgerrors.New("seed admin: password must have at least 8 characters")
	}
	var profile models.Profile
	if err := gdb.Where("name = ?", ProfileAdmin).First(&profile).Error; err != nil {
		return pkgerrors.Wrap(err, "seed admin: load profile")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := models.User{Email: email, Name: "Administrator", Password: string(hash), Active: true, ProfileID: &profile.ID}
	if err := gdb.Create(&user).Error; err != nil {
		return pkgerrors.Wrap(err, "seed admin")
	}
	log.Info("admin user created", "email", email)
	return nil
}

func seedDemo(gdb *gorm.DB) error {
	var count int64
	if err := gdb.Model(&models.SaleOrder{}).Where("name = ?", "SO-DEMO-1").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return gdb.Transaction(func(tx *gorm.DB) error {
		company := models.Partner{Name: "Demo Industries", IsCompany: true, Type: "company", Active: true}
		if err := tx.Create(&company).Error; err != nil {
			return err
		}
		contact := models.Partner{Name: "Jane Doe", Email: "jane.doe@example.com", Phone: "+33600000000",
			Type: models.PartnerTypeContact, Active: true, ParentID: &company.ID}
		if err := tx.Create(&contact).Error; err != nil {
			return err
		}
		order := models.SaleOrder{
			Name:      "SO-DEMO-1",
			State:     "draft",
			PartnerID: company.ID,
			Currency:  "EUR",
			Lines: []models.SaleOrderLine{
				{Sequence: 10, Description: "Onboarding workshop", Quantity: 1, UnitPrice: 1200},
				{Sequence: 20, Description: "Support plan (monthly)", Quantity: 12, UnitPrice: 150},
			},
			Signature: models.SignatureRequest{Status: models.SignatureStatusDraft},
		}
		order.AmountTotal = 1200 + 12*150
		return tx.Create(&order).Error
	})
}
