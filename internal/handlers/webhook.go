package handlers

import (
	"net/http"
	"net/mail"
	"strings"

	"procurement/internal/rfp"
)

// Входящее письмо в виде JSON: для почтовых шлюзов и ручной проверки
type inboundEmailRequest struct {
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	RFPID   string `json:"rfpId"`
}

// InboundEmailHandler сохраняет ответ поставщика. Без rfpId идентификатор
// берётся из метки [Ref:...] в теме.
func (h *Handler) InboundEmailHandler(w http.ResponseWriter, r *http.Request) {
	var req inboundEmailRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	rfpID := strings.TrimSpace(req.RFPID)
	if rfpID == "" {
		ref, ok := rfp.ExtractRef(req.Subject)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "rfpId is required when the subject has no reference token"})
			return
		}
		rfpID = ref
	}

	proposal, err := h.RFPs.RecordProposal(r.Context(), rfp.Reply{
		VendorEmail: senderAddress(req.Sender),
		Body:        req.Body,
		RFPID:       rfpID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, proposal)
}

// senderAddress: "Acme <sales@acme.test>" -> sales@acme.test
func senderAddress(sender string) string {
	if addr, err := mail.ParseAddress(sender); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(sender)
}
