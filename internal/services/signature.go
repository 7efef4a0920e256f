package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diewo77/go-esign/internal/esign"
	"github.com/diewo77/go-esign/internal/events"
	"github.com/diewo77/go-esign/internal/logging"
	"github.com/diewo77/go-esign/internal/models"
	"github.com/diewo77/go-esign/internal/pdf"
	"github.com/diewo77/go-esign/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultFollowUp is the delay before the salesperson is reminded to check a sent request.
const DefaultFollowUp = 3 * 24 * time.Hour

// launchClaimTTL outlives the gateway launch timeout.
const launchClaimTTL = 2 * time.Minute

// SignatureService drives the signature lifecycle of sale orders:
// draft -> sent -> signed | expired | cancelled.
type SignatureService struct {
	db         *gorm.DB
	gateway    Gateway
	renderer   DocumentRenderer
	pages      PageCounter
	notifier   Notifier
	activities ActivityScheduler
	events     events.Publisher
	followUp   time.Duration
	now        func() time.Time
	log        logging.Logger
}

type SignatureOption func(*SignatureService)

func WithPageCounter(pc PageCounter) SignatureOption {
	return func(s *SignatureService) { s.pages = pc }
}

func WithNotifier(n Notifier) SignatureOption {
	return func(s *SignatureService) { s.notifier = n }
}

func WithActivities(a ActivityScheduler) SignatureOption {
	return func(s *SignatureService) { s.activities = a }
}

func WithEvents(p events.Publisher) SignatureOption {
	return func(s *SignatureService) { s.events = p }
}

func WithFollowUp(d time.Duration) SignatureOption {
	return func(s *SignatureService) { s.followUp = d }
}

func WithClock(now func() time.Time) SignatureOption {
	return func(s *SignatureService) { s.now = now }
}

func WithLogger(l logging.Logger) SignatureOption {
	return func(s *SignatureService) { s.log = l }
}

func NewSignatureService(db *gorm.DB, gateway Gateway, renderer DocumentRenderer, opts ...SignatureOption) *SignatureService {
	chatter := NewChatter(db)
	s := &SignatureService{
		db:         db,
		gateway:    gateway,
		renderer:   renderer,
		pages:      pdf.PageCount,
		notifier:   chatter,
		activities: chatter,
		events:     events.Nop{},
		followUp:   DefaultFollowUp,
		now:        time.Now,
		log:        logging.GetLogger("signature"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Order returns an order with its customer and lines.
func (s *SignatureService) Order(ctx context.Context, id uint) (*models.SaleOrder, error) {
	var o models.SaleOrder
	err := s.db.WithContext(ctx).
		Preload("Partner").
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("sequence, id") }).
		First(&o, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// History returns the send attempts of an order, oldest first.
func (s *SignatureService) History(ctx context.Context, orderID uint) ([]models.SignatureHistory, error) {
	if _, err := s.Order(ctx, orderID); err != nil {
		return nil, err
	}
	var out []models.SignatureHistory
	if err := s.db.WithContext(ctx).Where("sale_order_id = ?", orderID).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SignedDocument returns the signed PDF attached to a signed order.
func (s *SignatureService) SignedDocument(ctx context.Context, orderID uint) (*models.Attachment, error) {
	o, err := s.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Signature.Status != models.SignatureStatusSigned || o.Signature.SignedDocumentID == nil {
		return nil, ErrNotFound
	}
	var att models.Attachment
	if err := s.db.WithContext(ctx).First(&att, *o.Signature.SignedDocumentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &att, nil
}

// Send starts a signature cycle for an order in draft or in a terminal state.
func (s *SignatureService) Send(ctx context.Context, orderID uint, signer *ConfirmedSigner) (*models.SaleOrder, error) {
	return s.start(ctx, orderID, signer, false)
}

// Resend starts a new cycle from any state. Earlier cycles stay in the history.
func (s *SignatureService) Resend(ctx context.Context, orderID uint, signer *ConfirmedSigner) (*models.SaleOrder, error) {
	return s.start(ctx, orderID, signer, true)
}

func (s *SignatureService) start(ctx context.Context, orderID uint, signer *ConfirmedSigner, resend bool) (*models.SaleOrder, error) {
	if signer == nil || signer.Signer == nil {
		return nil, validation.Single("signer_id", "required")
	}
	if signer.Template == nil {
		return nil, validation.Single("template_id", "required")
	}
	order, err := s.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	prev := order.Signature
	if err := CheckStart(order, resend); err != nil {
		return nil, err
	}

	doc, err := s.renderer.Render(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("render quotation %s: %w", order.Name, err)
	}
	if len(doc) == 0 {
		return nil, ErrNoDocument
	}
	total, err := s.pages(doc)
	if err != nil {
		return nil, err
	}
	tmpl := signer.Template
	page := tmpl.PageFor(total)

	tr, err := s.gateway.CreateTransaction(ctx, doc, order.Name+".pdf")
	if err != nil {
		s.log.Warn("create transaction failed", "order_id", order.ID, "error", err)
		return nil, err
	}
	log := s.log.New("order_id", order.ID, "transaction_uuid", tr.UUID)

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if locked.Signature.UUID() != prev.UUID() {
			return ErrConcurrentSend
		}
		if locked.Signature.LaunchPending() {
			h := models.SignatureHistory{
				SaleOrderID:     locked.ID,
				TransactionUUID: locked.Signature.UUID(),
				SignerID:        locked.Signature.SignerID,
				Recipient:       locked.Signature.SignerEmail,
				TemplateID:      locked.Signature.TemplateID,
				Outcome:         models.HistoryOutcomeAbandoned,
				SentAt:          now,
			}
			if err := tx.Create(&h).Error; err != nil {
				return err
			}
		}
		uuid := tr.UUID
		signerID, templateID := signer.Signer.ID, tmpl.ID
		locked.Signature = models.SignatureRequest{
			TransactionUUID: &uuid,
			DocumentID:      tr.DocumentID,
			Status:          models.SignatureStatusSent,
			TemplateID:      &templateID,
			SignerID:        &signerID,
			SignerName:      signer.Signer.Name,
			SignerEmail:     signer.Email,
			SignerPhone:     signer.Phone,
			Page:            page,
			XAxis:           tmpl.XAxis,
			YAxis:           tmpl.YAxis,
			SignatureType:   tmpl.SignatureType,
		}
		return tx.Omit(clause.Associations).Save(locked).Error
	})
	if err != nil {
		// the transaction exists remotely but is not linked to the order
		log.Error("persist transaction failed, remote transaction orphaned", "error", err)
		return nil, err
	}
	log.Info("transaction created", "page", page, "template_id", tmpl.ID)

	order, err = s.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.launch(ctx, order)
}

// CheckStart reports whether a new signature cycle may start on order.
// Resend may always start one; send refuses an active cycle.
func CheckStart(order *models.SaleOrder, resend bool) error {
	sig := order.Signature
	if resend || sig.CanSend() {
		return nil
	}
	if sig.LaunchPending() {
		return ErrLaunchPending
	}
	return ErrInvalidState
}

// Launch retries the launch of a cycle whose transaction was created but
// not launched. It never creates a new transaction and is a no-op once the
// cycle is launched.
func (s *SignatureService) Launch(ctx context.Context, orderID uint) (*models.SaleOrder, error) {
	order, err := s.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	sig := order.Signature
	if sig.LaunchPending() {
		return s.launch(ctx, order)
	}
	if sig.Status == models.SignatureStatusSent && sig.SentAt != nil {
		return order, nil
	}
	return nil, ErrInvalidState
}

func (s *SignatureService) launch(ctx context.Context, order *models.SaleOrder) (*models.SaleOrder, error) {
	sig := order.Signature
	uuid := sig.UUID()
	log := s.log.New("order_id", order.ID, "transaction_uuid", uuid)
	if err := s.claimLaunch(ctx, order.ID, uuid); err != nil {
		if errors.Is(err, ErrConcurrentSend) {
			log.Warn("launch already in progress")
		}
		return nil, err
	}
	first, last := (&models.Partner{Name: sig.SignerName}).SplitName()
	url, err := s.gateway.Launch(ctx, esign.LaunchRequest{
		TransactionUUID: uuid,
		DocumentID:      sig.DocumentID,
		Signer: esign.Signer{
			FirstName: first,
			LastName:  last,
			Email:     sig.SignerEmail,
			Phone:     sig.SignerPhone,
		},
		Placement: esign.Placement{
			Page:          sig.Page,
			XAxis:         sig.XAxis,
			YAxis:         sig.YAxis,
			SignatureType: sig.SignatureType.APIValue(),
		},
		Message: fmt.Sprintf("Signature request for your quotation %s", order.Name),
	})
	if err != nil {
		log.Warn("launch failed, transaction kept for retry", "error", err)
		s.releaseLaunch(ctx, order.ID, uuid)
		return nil, &LaunchPendingError{OrderID: order.ID, TransactionUUID: uuid, Err: err}
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockOrder(tx, order.ID)
		if err != nil {
			return err
		}
		if locked.Signature.UUID() != uuid || !locked.Signature.LaunchPending() {
			return ErrConcurrentSend
		}
		locked.Signature.URL = url
		locked.Signature.SentAt = &now
		locked.Signature.LaunchingAt = nil
		if err := tx.Omit(clause.Associations).Save(locked).Error; err != nil {
			return err
		}
		h := models.SignatureHistory{
			SaleOrderID:     locked.ID,
			TransactionUUID: uuid,
			SignerID:        locked.Signature.SignerID,
			Recipient:       locked.Signature.SignerEmail,
			TemplateID:      locked.Signature.TemplateID,
			Outcome:         models.HistoryOutcomeLaunched,
			SentAt:          now,
		}
		return tx.Create(&h).Error
	})
	if err != nil {
		return nil, err
	}
	log.Info("signature request sent", "recipient", sig.SignerEmail)

	if err := s.notifier.Notify(ctx, order.ID, fmt.Sprintf("Document sent to %s (%s) for signature", sig.SignerName, sig.SignerEmail)); err != nil {
		log.Warn("post message failed", "error", err)
	}
	note := fmt.Sprintf("Check whether %s signed quotation %s.", sig.SignerName, order.Name)
	if err := s.activities.Schedule(ctx, order.ID, order.UserID, "Follow up on signature", note, now.Add(s.followUp)); err != nil {
		log.Warn("schedule follow-up failed", "error", err)
	}
	e := events.New(events.TypeSent, order.ID, order.Name, uuid, string(models.SignatureStatusSent), now)
	e.Recipient = sig.SignerEmail
	s.publish(ctx, e)
	return s.Order(ctx, order.ID)
}

// RefreshStatus asks the signature API for the status of the current cycle
// and applies it. Calling it again with the same remote status leaves the
// order unchanged.
func (s *SignatureService) RefreshStatus(ctx context.Context, orderID uint) (*models.SaleOrder, error) {
	order, err := s.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Signature.Refreshable() {
		return nil, ErrInvalidState
	}
	uuid := order.Signature.UUID()
	log := s.log.New("order_id", order.ID, "transaction_uuid", uuid)

	remote, err := s.gateway.CheckStatus(ctx, uuid)
	if err != nil {
		log.Warn("status check failed", "error", err)
		return nil, err
	}
	var target models.SignatureStatus
	switch remote {
	case esign.StatusSigned:
		target = models.SignatureStatusSigned
	case esign.StatusExpired:
		target = models.SignatureStatusExpired
	case esign.StatusCancelled:
		target = models.SignatureStatusCancelled
	default:
		log.Debug("status unchanged", "remote_status", remote)
		return order, nil
	}

	var doc []byte
	if target == models.SignatureStatusSigned {
		if doc, err = s.gateway.FetchSignedDocument(ctx, uuid); err != nil {
			log.Warn("fetch signed document failed", "error", err)
			return nil, err
		}
	}

	now := s.now()
	changed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		// another refresh or a resend got there first
		if locked.Signature.UUID() != uuid || locked.Signature.Status.IsTerminal() {
			return nil
		}
		if target == models.SignatureStatusSigned {
			att := newAttachment(locked.ID, locked.Name+" (signed).pdf", doc)
			if err := tx.Create(&att).Error; err != nil {
				return err
			}
			locked.Signature.SignedDocumentID = &att.ID
			locked.Signature.SignedAt = &now
		}
		locked.Signature.Status = target
		if err := tx.Omit(clause.Associations).Save(locked).Error; err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return s.Order(ctx, orderID)
	}
	log.Info("signature status changed", "status", target)

	var body, typ string
	switch target {
	case models.SignatureStatusSigned:
		body, typ = fmt.Sprintf("Document signed by %s.", order.Signature.SignerName), events.TypeSigned
	case models.SignatureStatusExpired:
		body, typ = "Signature request expired.", events.TypeExpired
	default:
		body, typ = "Signature request cancelled.", events.TypeCancelled
	}
	if err := s.notifier.Notify(ctx, order.ID, body); err != nil {
		log.Warn("post message failed", "error", err)
	}
	e := events.New(typ, order.ID, order.Name, uuid, string(target), now)
	e.Recipient = order.Signature.SignerEmail
	s.publish(ctx, e)
	return s.Order(ctx, orderID)
}

func (s *SignatureService) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn("publish event failed", "type", e.Type, "order_id", e.OrderID, "error", err)
	}
}

// claimLaunch marks the launch of a pending cycle as in flight so that a
// concurrent retry of the same cycle never reaches the signature API. A claim
// older than launchClaimTTL is considered abandoned by a crashed process.
func (s *SignatureService) claimLaunch(ctx context.Context, orderID uint, uuid string) error {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.SaleOrder{}).
		Where("id = ? AND signature_transaction_uuid = ? AND signature_status = ? AND signature_sent_at IS NULL",
			orderID, uuid, models.SignatureStatusSent).
		Where("(signature_launching_at IS NULL OR signature_launching_at < ?)", now.Add(-launchClaimTTL)).
		Update("signature_launching_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentSend
	}
	return nil
}

func (s *SignatureService) releaseLaunch(ctx context.Context, orderID uint, uuid string) {
	err := s.db.WithContext(context.WithoutCancel(ctx)).Model(&models.SaleOrder{}).
		Where("id = ? AND signature_transaction_uuid = ?", orderID, uuid).
		Update("signature_launching_at", nil).Error
	if err != nil {
		s.log.Warn("release launch claim failed", "order_id", orderID, "error", err)
	}
}

// lockOrder reads an order for update. sqlite ignores the locking clause.
func lockOrder(tx *gorm.DB, id uint) (*models.SaleOrder, error) {
	var o models.SaleOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}
