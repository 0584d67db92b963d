package handlers

import (
	"fmt"
	"net/http"

	"procurement/internal/rfp"

	"github.com/go-chi/chi/v5"
)

type createRFPRequest struct {
	Prompt string `json:"prompt"`
}

type sendRFPRequest struct {
	RFPID     string   `json:"rfpId"`
	VendorIDs []string `json:"vendorIds"`
}

type sendRFPResponse struct {
	Message string `json:"message"`
	*rfp.SendResult
}

// GetRFPsHandler возвращает все RFP, новые первыми
func (h *Handler) GetRFPsHandler(w http.ResponseWriter, r *http.Request) {
	rfps, err := h.RFPs.ListAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rfps)
}

// CreateRFPHandler обрабатывает POST /api/rfp: свободный текст -> RFP в DRAFT
func (h *Handler) CreateRFPHandler(w http.ResponseWriter, r *http.Request) {
	var req createRFPRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.RFPs.Create(r.Context(), req.Prompt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// SendRFPHandler рассылает RFP. При частичной неудаче отвечает 502 с отчётом по поставщикам.
func (h *Handler) SendRFPHandler(w http.ResponseWriter, r *http.Request) {
	var req sendRFPRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.RFPs.Send(r.Context(), req.RFPID, req.VendorIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sendRFPResponse{
		Message:    fmt.Sprintf("RFP sent to %d vendor(s)", len(result.Sent)),
		SendResult: result,
	})
}

func (h *Handler) GetRFPHandler(w http.ResponseWriter, r *http.Request) {
	found, err := h.RFPs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// CompareHandler возвращает {rfp, proposals, aiAnalysis}
func (h *Handler) CompareHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.Ranking.Compare(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) GetProposalsHandler(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.RFPs.Proposals(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proposals)
}

func (h *Handler) CloseRFPHandler(w http.ResponseWriter, r *http.Request) {
	closed, err := h.RFPs.Close(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, closed)
}
