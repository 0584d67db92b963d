package handlers

import "net/http"

type createVendorRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	ContactPerson string `json:"contactPerson"`
}

func (h *Handler) GetVendorsHandler(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.RFPs.ListVendors(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vendors)
}

// CreateVendorHandler: email должен быть уникален, иначе 409
func (h *Handler) CreateVendorHandler(w http.ResponseWriter, r *http.Request) {
	var req createVendorRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	vendor, err := h.RFPs.CreateVendor(r.Context(), req.Name, req.Email, req.ContactPerson)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vendor)
}
