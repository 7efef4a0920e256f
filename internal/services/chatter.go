package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/diewo77/go-esign/internal/models"
	"gorm.io/gorm"
)

// Chatter stores order messages and activities in the database.
type Chatter struct {
	db *gorm.DB
}

func NewChatter(db *gorm.DB) *Chatter { return &Chatter{db: db} }

func (c *Chatter) Notify(ctx context.Context, orderID uint, body string) error {
	msg := models.Message{ResModel: models.SaleOrderModel, ResID: orderID, Body: body}
	return c.db.WithContext(ctx).Create(&msg).Error
}

func (c *Chatter) Schedule(ctx context.Context, orderID uint, userID *uint, summary, note string, deadline time.Time) error {
	act := models.Activity{
		ResModel: models.SaleOrderModel,
		ResID:    orderID,
		UserID:   userID,
		Summary:  summary,
		Note:     note,
		Deadline: deadline,
	}
	return c.db.WithContext(ctx).Create(&act).Error
}

// Messages lists the messages of an order, oldest first.
func (c *Chatter) Messages(ctx context.Context, orderID uint) ([]models.Message, error) {
	var out []models.Message
	err := c.db.WithContext(ctx).
		Where("res_model = ? AND res_id = ?", models.SaleOrderModel, orderID).
		Order("id").Find(&out).Error
	return out, err
}

// Activities lists the open activities of an order.
func (c *Chatter) Activities(ctx context.Context, orderID uint) ([]models.Activity, error) {
	var out []models.Activity
	err := c.db.WithContext(ctx).
		Where("res_model = ? AND res_id = ? AND done = ?", models.SaleOrderModel, orderID, false).
		Order("deadline").Find(&out).Error
	return out, err
}

func newAttachment(orderID uint, name string, data []byte) models.Attachment {
	sum := sha256.Sum256(data)
	return models.Attachment{
		ResModel: models.SaleOrderModel,
		ResID:    orderID,
		Name:     name,
		MimeType: "application/pdf",
		Checksum: hex.EncodeToString(sum[:]),
		Size:     len(data),
		Data:     data,
	}
}
