package handlers

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/diewo77/go-esign/httpx"
	"github.com/diewo77/go-esign/internal/logging"
	"github.com/diewo77/go-esign/internal/models"
	"github.com/diewo77/go-esign/internal/policy"
	"github.com/diewo77/go-esign/internal/services"
)

// OrderHandler exposes the signature actions of sale orders.
type OrderHandler struct {
	signatures *services.SignatureService
	signers    *services.SignerService
	chatter    *services.Chatter
	gate       *policy.Gate
	log        logging.Logger
}

func NewOrderHandler(signatures *services.SignatureService, signers *services.SignerService, chatter *services.Chatter, gate *policy.Gate) *OrderHandler {
	return &OrderHandler{signatures: signatures, signers: signers, chatter: chatter, gate: gate, log: logging.GetLogger("http.orders")}
}

type orderView struct {
	*models.SaleOrder
	RefreshError string `json:"refresh_error,omitempty"`
}

// load fetches the order named by the {id} parameter and checks the user may
// perform action on it. It writes the error answer itself.
func (h *OrderHandler) load(w http.ResponseWriter, r *http.Request, action policy.Action) (*models.SaleOrder, bool) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return nil, false
	}
	order, err := h.signatures.Order(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return nil, false
	}
	if err := h.gate.Authorize(r.Context(), policy.ResourceSaleOrder, action, order); err != nil {
		writeError(w, h.log, err)
		return nil, false
	}
	return order, true
}

// Get returns an order. A launched request still in progress is refreshed
// first; a refresh failure is reported next to the stored state.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	view := orderView{SaleOrder: order}
	if order.Signature.Refreshable() && order.Signature.SentAt != nil {
		refreshed, err := h.signatures.RefreshStatus(r.Context(), order.ID)
		if err != nil {
			h.log.Warn("refresh on open failed", "order", order.ID, "error", err)
			view.RefreshError = err.Error()
		} else {
			view.SaleOrder = refreshed
		}
	}
	httpx.JSON(w, http.StatusOK, view)
}

// Selection opens the signer selection. ?signer_id pre-fills a chosen contact.
func (h *OrderHandler) Selection(w http.ResponseWriter, r *http.Request) {
	order, ok := h.load(w, r, policy.ActionSign)
	if !ok {
		return
	}
	sel, err := h.signers.Open(r.Context(), order.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if raw := r.URL.Query().Get("signer_id"); raw != "" {
		signerID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_signer_id", nil)
			return
		}
		if err := h.signers.Choose(r.Context(), sel, uint(signerID)); err != nil {
			writeError(w, h.log, err)
			return
		}
	}
	httpx.JSON(w, http.StatusOK, sel)
}

type sendRequest struct {
	SignerID      uint   `json:"signer_id"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	TemplateID    uint   `json:"template_id"`
	UpdateContact bool   `json:"update_contact"`
}

func (h *OrderHandler) Send(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, false)
}

func (h *OrderHandler) Resend(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, true)
}

func (h *OrderHandler) start(w http.ResponseWriter, r *http.Request, resend bool) {
	order, ok := h.load(w, r, policy.ActionSign)
	if !ok {
		return
	}
	var in sendRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	// refuse before Confirm writes the contact back
	if err := services.CheckStart(order, resend); err != nil {
		writeError(w, h.log, err)
		return
	}
	signer, err := h.signers.Confirm(r.Context(), services.Selection{
		OrderID:       order.ID,
		SignerID:      in.SignerID,
		Email:         in.Email,
		Phone:         in.Phone,
		TemplateID:    in.TemplateID,
		UpdateContact: in.UpdateContact,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	send := h.signatures.Send
	if resend {
		send = h.signatures.Resend
	}
	updated, err := send(r.Context(), order.ID, signer)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

// Launch retries the launch of a transaction that was created but not launched.
func (h *OrderHandler) Launch(w http.ResponseWriter, r *http.Request) {
	order, ok := h.load(w, r, policy.ActionSign)
	if !ok {
		return
	}
	updated, err := h.signatures.Launch(r.Context(), order.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	order, ok := h.load(w, r, policy.ActionSign)
	if !ok {
		return
	}
	updated, err := h.signatures.RefreshStatus(r.Context(), order.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) History(w http.ResponseWriter, r *http.Request) {
	order, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	history, err := h.signatures.History(r.Context(), order.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, history)
}

// Chatter returns the messages and open activities of an order.
func (h *OrderHandler) Chatter(w http.ResponseWriter, r *http.Request) {
	order, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	messages, err := h.chatter.Messages(r.Context(), order.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	activities, err := h.chatter.Activities(r.Context(), order.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"messages": messages, "activities": activities})
}

// Document streams the signed PDF.
func (h *OrderHandler) Document(w http.ResponseWriter, r *http.Request) {
	order, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	att, err := h.signatures.SignedDocument(r.Context(), order.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	w.Header().Set("Content-Type", att.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(att.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(att.Data)
}
