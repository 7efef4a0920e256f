// Package models holds the gorm entities of the signature service.
package models

// All lists every persisted model in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&Permission{}, &Profile{}, &User{},
		&Partner{},
		&SignatureTemplate{},
		&SaleOrder{}, &SaleOrderLine{}, &SignatureHistory{},
		&Attachment{}, &Message{}, &Activity{}, &Setting{},
	}
}
