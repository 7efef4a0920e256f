package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/diewo77/go-esign/internal/esign"
	"github.com/diewo77/go-esign/internal/events"
	"github.com/diewo77/go-esign/internal/models"
)

func TestSendDraftOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	checkInvariants(t, o)
	sig := o.Signature
	if sig.Status != models.SignatureStatusSent {
		t.Fatalf("expected status sent got %s", sig.Status)
	}
	if sig.UUID() != "tx-1" {
		t.Fatalf("expected uuid tx-1 got %q", sig.UUID())
	}
	if sig.URL != "https://sign/tx-1" {
		t.Fatalf("expected url https://sign/tx-1 got %q", sig.URL)
	}
	if sig.SentAt == nil || !sig.SentAt.Equal(fixedNow) {
		t.Fatalf("expected sent_at %v got %v", fixedNow, sig.SentAt)
	}
	if sig.Page != 3 || sig.XAxis != 120 || sig.YAxis != 80 {
		t.Fatalf("unexpected placement page=%d x=%d y=%d", sig.Page, sig.XAxis, sig.YAxis)
	}

	h, err := f.svc.History(ctx, f.order.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(h) != 1 || h[0].Recipient != "a@b.com" || h[0].Outcome != models.HistoryOutcomeLaunched {
		t.Fatalf("unexpected history %+v", h)
	}

	chatter := NewChatter(f.db)
	msgs, _ := chatter.Messages(ctx, f.order.ID)
	if len(msgs) != 1 || msgs[0].Body != "Document sent to Alice Martin (a@b.com) for signature" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	acts, _ := chatter.Activities(ctx, f.order.ID)
	if len(acts) != 1 || acts[0].UserID == nil || *acts[0].UserID != f.salesman.ID {
		t.Fatalf("expected follow-up activity for salesman got %+v", acts)
	}
	if !acts[0].Deadline.Equal(fixedNow.Add(DefaultFollowUp)) {
		t.Fatalf("expected deadline %v got %v", fixedNow.Add(DefaultFollowUp), acts[0].Deadline)
	}
	if got := f.events.types(); !reflect.DeepEqual(got, []string{events.TypeSent}) {
		t.Fatalf("expected sent event got %v", got)
	}
}

func TestSendLaunchPayload(t *testing.T) {
	f := newFixture(t)
	if err := f.db.Model(&f.order).Update("partner_id", f.acme.ID).Error; err != nil {
		t.Fatalf("save order: %v", err)
	}
	if _, err := f.svc.Send(context.Background(), f.order.ID, f.signer(&f.bob, &f.page1)); err != nil {
		t.Fatalf("send: %v", err)
	}
	req := f.gateway.lastLaunch
	if req.TransactionUUID != "tx-1" || req.DocumentID != "doc-tx-1" {
		t.Fatalf("unexpected transaction ids %+v", req)
	}
	if req.Signer.FirstName != "Bob" || req.Signer.LastName != "Stone" || req.Signer.Email != "bob@acme.test" || req.Signer.Phone != "+33600000002" {
		t.Fatalf("unexpected signer %+v", req.Signer)
	}
	want := esign.Placement{Page: 1, XAxis: 10, YAxis: 20, SignatureType: "DIGI_GO"}
	if req.Placement != want {
		t.Fatalf("expected placement %+v got %+v", want, req.Placement)
	}
	if req.Message != "Signature request for your quotation SO001" {
		t.Fatalf("unexpected message %q", req.Message)
	}
}

func TestSendThenRefreshSentIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sent, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	for i := 0; i < 2; i++ {
		o, err := f.svc.RefreshStatus(ctx, f.order.ID)
		if err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
		if !reflect.DeepEqual(o.Signature, sent.Signature) {
			t.Fatalf("refresh %d changed signature: %+v vs %+v", i, o.Signature, sent.Signature)
		}
	}
	if f.gateway.fetches != 0 {
		t.Fatalf("expected no fetch got %d", f.gateway.fetches)
	}
}

func TestRefreshSigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last)); err != nil {
		t.Fatalf("send: %v", err)
	}
	f.gateway.status = esign.StatusSigned
	o, err := f.svc.RefreshStatus(ctx, f.order.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	checkInvariants(t, o)
	if o.Signature.Status != models.SignatureStatusSigned {
		t.Fatalf("expected signed got %s", o.Signature.Status)
	}
	att, err := f.svc.SignedDocument(ctx, f.order.ID)
	if err != nil {
		t.Fatalf("signed document: %v", err)
	}
	if string(att.Data) != "%PDF-signed" || att.Name != "SO001 (signed).pdf" || att.Size != len("%PDF-signed") {
		t.Fatalf("unexpected attachment %+v", att)
	}
	h, _ := f.svc.History(ctx, f.order.ID)
	if len(h) != 1 {
		t.Fatalf("expected history unchanged with 1 entry got %d", len(h))
	}

	// terminal: a second refresh is refused and leaves the state alone
	if _, err := f.svc.RefreshStatus(ctx, f.order.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState got %v", err)
	}
	again := f.reload(t)
	if !reflect.DeepEqual(again.Signature, o.Signature) {
		t.Fatalf("state changed after second refresh")
	}
	if got := f.events.types(); !reflect.DeepEqual(got, []string{events.TypeSent, events.TypeSigned}) {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestConcurrentRefreshAttachesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last)); err != nil {
		t.Fatalf("send: %v", err)
	}
	f.gateway.status = esign.StatusSigned
	// a second refresh completes while the first one downloads the document
	f.gateway.onFetch = func() {
		if _, err := f.svc.RefreshStatus(ctx, f.order.ID); err != nil {
			t.Errorf("inner refresh: %v", err)
		}
	}
	o, err := f.svc.RefreshStatus(ctx, f.order.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if o.Signature.Status != models.SignatureStatusSigned {
		t.Fatalf("expected signed got %s", o.Signature.Status)
	}
	var n int64
	f.db.Model(&models.Attachment{}).Where("res_id = ?", f.order.ID).Count(&n)
	if n != 1 {
		t.Fatalf("expected 1 attachment got %d", n)
	}
	signedEvents := 0
	for _, typ := range f.events.types() {
		if typ == events.TypeSigned {
			signedEvents++
		}
	}
	if signedEvents != 1 {
		t.Fatalf("expected 1 signed event got %d", signedEvents)
	}
}

func TestRefreshTerminalStatuses(t *testing.T) {
	cases := []struct {
		remote esign.Status
		want   models.SignatureStatus
		body   string
	}{
		{esign.StatusExpired, models.SignatureStatusExpired, "Signature request expired."},
		{esign.StatusCancelled, models.SignatureStatusCancelled, "Signature request cancelled."},
	}
	for _, c := range cases {
		t.Run(string(c.remote), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			if _, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last)); err != nil {
				t.Fatalf("send: %v", err)
			}
			f.gateway.status = c.remote
			o, err := f.svc.RefreshStatus(ctx, f.order.ID)
			if err != nil {
				t.Fatalf("refresh: %v", err)
			}
			checkInvariants(t, o)
			if o.Signature.Status != c.want {
				t.Fatalf("expected %s got %s", c.want, o.Signature.Status)
			}
			msgs, _ := NewChatter(f.db).Messages(ctx, f.order.ID)
			if last := msgs[len(msgs)-1].Body; last != c.body {
				t.Fatalf("expected message %q got %q", c.body, last)
			}
		})
	}
}

func TestRefreshUnknownAndPendingLeaveState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sent, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	for _, st := range []esign.Status{esign.StatusUnknown, esign.StatusPending} {
		f.gateway.status = st
		o, err := f.svc.RefreshStatus(ctx, f.order.ID)
		if err != nil {
			t.Fatalf("refresh %s: %v", st, err)
		}
		if o.Signature.Status != sent.Signature.Status {
			t.Fatalf("status %s changed state to %s", st, o.Signature.Status)
		}
	}
}

func TestRefreshDraftOrder(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.RefreshStatus(context.Background(), f.order.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState got %v", err)
	}
}

func TestRefreshGatewayErrorKeepsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last)); err != nil {
		t.Fatalf("send: %v", err)
	}
	f.gateway.statusErr = esign.ErrTransient
	if _, err := f.svc.RefreshStatus(ctx, f.order.ID); !errors.Is(err, esign.ErrTransient) {
		t.Fatalf("expected ErrTransient got %v", err)
	}
	if o := f.reload(t); o.Signature.Status != models.SignatureStatusSent {
		t.Fatalf("expected sent got %s", o.Signature.Status)
	}
}

func TestLaunchFailureNeverRecreatesTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.launchErr = esign.ErrTransient

	_, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last))
	var lp *LaunchPendingError
	if !errors.As(err, &lp) {
		t.Fatalf("expected LaunchPendingError got %v", err)
	}
	if lp.TransactionUUID != "tx-1" || !errors.Is(err, esign.ErrTransient) {
		t.Fatalf("unexpected launch pending error %+v", lp)
	}
	o := f.reload(t)
	if !o.Signature.LaunchPending() || o.Signature.URL != "" {
		t.Fatalf("expected launch pending order got %+v", o.Signature)
	}

	if _, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last)); !errors.Is(err, ErrLaunchPending) {
		t.Fatalf("expected ErrLaunchPending got %v", err)
	}
	if _, err := f.svc.Launch(ctx, f.order.ID); err == nil {
		t.Fatalf("expected launch retry to fail while api is down")
	}

	f.gateway.launchErr = nil
	o, err = f.svc.Launch(ctx, f.order.ID)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if o.Signature.UUID() != "tx-1" || o.Signature.URL != "https://sign/tx-1" || o.Signature.SentAt == nil {
		t.Fatalf("unexpected signature after launch %+v", o.Signature)
	}
	if _, err := f.svc.Launch(ctx, f.order.ID); err != nil {
		t.Fatalf("second launch: %v", err)
	}
	if f.gateway.creates != 1 {
		t.Fatalf("expected 1 create got %d", f.gateway.creates)
	}
	if f.gateway.launches != 3 {
		t.Fatalf("expected 3 launch calls got %d", f.gateway.launches)
	}
	h, _ := f.svc.History(ctx, f.order.ID)
	if len(h) != 1 {
		t.Fatalf("expected 1 history entry got %d", len(h))
	}
}

// reentrantGateway runs a second Launch of the same order while the first
// one is still talking to the signature API.
type reentrantGateway struct {
	*fakeGateway
	during func()
}

func (g *reentrantGateway) Launch(ctx context.Context, req esign.LaunchRequest) (string, error) {
	if hook := g.during; hook != nil {
		g.during = nil
		hook()
	}
	return g.fakeGateway.Launch(ctx, req)
}

func TestConcurrentLaunchRetryCallsAPIOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gw := &reentrantGateway{fakeGateway: f.gateway}
	svc := NewSignatureService(f.db, gw, stubRenderer{doc: []byte("%PDF-quotation")},
		WithPageCounter(func([]byte) (int, error) { return 3, nil }),
		WithClock(func() time.Time { return fixedNow }),
	)

	f.gateway.launchErr = esign.ErrTransient
	var lp *LaunchPendingError
	if _, err := svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last)); !errors.As(err, &lp) {
		t.Fatalf("expected LaunchPendingError got %v", err)
	}
	f.gateway.launchErr = nil

	var innerErr error
	gw.during = func() { _, innerErr = svc.Launch(ctx, f.order.ID) }
	o, err := svc.Launch(ctx, f.order.ID)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if !errors.Is(innerErr, ErrConcurrentSend) {
		t.Fatalf("expected ErrConcurrentSend for the overlapping retry got %v", innerErr)
	}
	if f.gateway.launches != 2 {
		t.Fatalf("expected 2 launch calls (1 failed, 1 retry) got %d", f.gateway.launches)
	}
	if o.Signature.SentAt == nil || o.Signature.LaunchingAt != nil {
		t.Fatalf("unexpected signature after launch %+v", o.Signature)
	}
	h, _ := svc.History(ctx, f.order.ID)
	if len(h) != 1 {
		t.Fatalf("expected 1 history entry got %d", len(h))
	}
}

func TestFailedLaunchReleasesClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.launchErr = esign.ErrTransient
	if _, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last)); err == nil {
		t.Fatalf("expected send to fail")
	}
	if o := f.reload(t); o.Signature.LaunchingAt != nil {
		t.Fatalf("expected launch claim released got %v", o.Signature.LaunchingAt)
	}
	if _, err := f.svc.Launch(ctx, f.order.ID); errors.Is(err, ErrConcurrentSend) {
		t.Fatalf("expected retry to reach the api got %v", err)
	}
	if f.gateway.launches != 2 {
		t.Fatalf("expected 2 launch calls got %d", f.gateway.launches)
	}
}

func TestLaunchDraftOrder(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Launch(context.Background(), f.order.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState got %v", err)
	}
}

func TestSendWhileSentRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState got %v", err)
	}
	if f.gateway.creates != 1 {
		t.Fatalf("expected 1 create got %d", f.gateway.creates)
	}
}

func TestResendFromSigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last)); err != nil {
		t.Fatalf("send: %v", err)
	}
	f.gateway.status = esign.StatusSigned
	if _, err := f.svc.RefreshStatus(ctx, f.order.ID); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	second := &ConfirmedSigner{Signer: &f.alice, Email: "alice@other.test", Template: &f.page1}
	o, err := f.svc.Resend(ctx, f.order.ID, second)
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	checkInvariants(t, o)
	if o.Signature.UUID() != "tx-2" || o.Signature.Status != models.SignatureStatusSent {
		t.Fatalf("expected sent tx-2 got %s %q", o.Signature.Status, o.Signature.UUID())
	}
	if o.Signature.SignedDocumentID != nil || o.Signature.SignedAt != nil {
		t.Fatalf("expected signed document unlinked")
	}
	h, _ := f.svc.History(ctx, f.order.ID)
	if len(h) != 2 || h[0].Recipient != "a@b.com" || h[1].Recipient != "alice@other.test" {
		t.Fatalf("unexpected history %+v", h)
	}
	if h[0].TransactionUUID != "tx-1" || h[1].TransactionUUID != "tx-2" {
		t.Fatalf("unexpected history uuids %q %q", h[0].TransactionUUID, h[1].TransactionUUID)
	}
}

func TestSendFromExpiredStartsNewCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last)); err != nil {
		t.Fatalf("send: %v", err)
	}
	f.gateway.status = esign.StatusExpired
	if _, err := f.svc.RefreshStatus(ctx, f.order.ID); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	f.gateway.status = esign.StatusSent
	o, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last))
	if err != nil {
		t.Fatalf("send again: %v", err)
	}
	if o.Signature.UUID() != "tx-2" {
		t.Fatalf("expected tx-2 got %q", o.Signature.UUID())
	}
}

func TestResendAbandonsPendingLaunch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.launchErr = &esign.APIError{Op: "launch", StatusCode: 422, Message: "bad phone"}
	if _, err := f.svc.Send(ctx, f.order.ID, f.signer(&f.alice, &f.last)); err == nil {
		t.Fatalf("expected launch failure")
	}
	f.gateway.launchErr = nil
	o, err := f.svc.Resend(ctx, f.order.ID, f.signer(&f.alice, &f.last))
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if o.Signature.UUID() != "tx-2" || o.Signature.SentAt == nil {
		t.Fatalf("unexpected signature %+v", o.Signature)
	}
	h, _ := f.svc.History(ctx, f.order.ID)
	if len(h) != 2 {
		t.Fatalf("expected 2 history entries got %d", len(h))
	}
	if h[0].Outcome != models.HistoryOutcomeAbandoned || h[0].TransactionUUID != "tx-1" {
		t.Fatalf("expected abandoned tx-1 first got %+v", h[0])
	}
	if h[1].Outcome != models.HistoryOutcomeLaunched || h[1].TransactionUUID != "tx-2" {
		t.Fatalf("expected launched tx-2 second got %+v", h[1])
	}
}

func TestSendGatewayErrorsLeaveDraft(t *testing.T) {
	cases := []struct {
		name string
		err  error
		is   error
	}{
		{"auth", &esign.APIError{Op: "create_transaction", StatusCode: 401}, esign.ErrAuth},
		{"transient", esign.ErrTransient, esign.ErrTransient},
		{"not_configured", esign.ErrNotConfigured, esign.ErrNotConfigured},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			f.gateway.createErr = c.err
			if _, err := f.svc.Send(context.Background(), f.order.ID, f.signer(&f.alice, &f.last)); !errors.Is(err, c.is) {
				t.Fatalf("expected %v got %v", c.is, err)
			}
			o := f.reload(t)
			if o.Signature.Status != models.SignatureStatusDraft || o.Signature.HasTransaction() {
				t.Fatalf("expected untouched draft got %+v", o.Signature)
			}
		})
	}
}

func TestSendWithoutDocument(t *testing.T) {
	f := newFixture(t)
	svc := NewSignatureService(f.db, f.gateway, stubRenderer{},
		WithPageCounter(func([]byte) (int, error) { return 1, nil }))
	if _, err := svc.Send(context.Background(), f.order.ID, f.signer(&f.alice, &f.last)); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument got %v", err)
	}
	if f.gateway.creates != 0 {
		t.Fatalf("expected no transaction got %d", f.gateway.creates)
	}
}

func TestSendRequiresSigner(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Send(context.Background(), f.order.ID, nil); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := f.svc.Send(context.Background(), 9999, f.signer(&f.alice, &f.last)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestSignedDocumentMissing(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.SignedDocument(context.Background(), f.order.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}
