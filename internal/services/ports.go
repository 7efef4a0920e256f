package services

import (
	"context"
	"time"

	"github.com/diewo77/go-esign/internal/esign"
	"github.com/diewo77/go-esign/internal/models"
)

// Gateway is the signature API as seen by the lifecycle controller.
type Gateway interface {
	CreateTransaction(ctx context.Context, pdf []byte, filename string) (esign.Transaction, error)
	Launch(ctx context.Context, req esign.LaunchRequest) (string, error)
	CheckStatus(ctx context.Context, uuid string) (esign.Status, error)
	FetchSignedDocument(ctx context.Context, uuid string) ([]byte, error)
}

// DocumentRenderer produces the quotation PDF of an order.
type DocumentRenderer interface {
	Render(ctx context.Context, order *models.SaleOrder) ([]byte, error)
}

// PageCounter returns the number of pages of a PDF.
type PageCounter func(pdf []byte) (int, error)

// Notifier posts a message on an order's chatter.
type Notifier interface {
	Notify(ctx context.Context, orderID uint, body string) error
}

// ActivityScheduler schedules a to-do on an order.
type ActivityScheduler interface {
	Schedule(ctx context.Context, orderID uint, userID *uint, summary, note string, deadline time.Time) error
}
