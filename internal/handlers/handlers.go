package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"procurement/internal/extraction"
	"procurement/internal/rfp"
	"procurement/models"

	"go.uber.org/zap"
)

const defaultMaxBodyBytes = 1 << 20

// RFPService - операции жизненного цикла, доступные по HTTP
type RFPService interface {
	Create(ctx context.Context, text string) (*models.RFP, error)
	Get(ctx context.Context, id string) (*models.RFP, error)
	ListAll(ctx context.Context) ([]models.RFP, error)
	Send(ctx context.Context, rfpID string, vendorIDs []string) (*rfp.SendResult, error)
	Close(ctx context.Context, id string) (*models.RFP, error)
	Proposals(ctx context.Context, rfpID string) ([]models.Proposal, error)
	RecordProposal(ctx context.Context, reply rfp.Reply) (*models.Proposal, error)

	CreateVendor(ctx context.Context, name, email, contactPerson string) (*models.Vendor, error)
	ListVendors(ctx context.Context) ([]models.Vendor, error)
}

type Comparer interface {
	Compare(ctx context.Context, rfpID string) (*models.ComparisonReport, error)
}

// Handler связывает HTTP с сервисами
type Handler struct {
	RFPs    RFPService
	Ranking Comparer

	log          *zap.Logger
	maxBodyBytes int64
}

// NewHandler создает новый Handler
func NewHandler(rfps RFPService, ranking Comparer, maxBodyBytes int64, log *zap.Logger) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{RFPs: rfps, Ranking: ranking, log: log.Named("http"), maxBodyBytes: maxBodyBytes}
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type errorResponse struct {
	Error string `json:"error"`
	// Result - отчёт о рассылке при частичной неудаче
	Result *rfp.SendResult `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON читает тело с ограничением размера
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON format", rfp.ErrInvalidInput)
	}
	return nil
}

// writeError переводит ошибки сервисов в HTTP-статусы
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound      *rfp.NotFoundError
		unknownVendor *rfp.UnknownVendorError
		dispatch      *rfp.DispatchError
		tooLarge      *http.MaxBytesError
	)
	switch {
	case errors.Is(err, rfp.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &unknownVendor):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case extraction.IsExtractionError(err):
		h.log.Warn("extraction failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, rfp.ErrRFPClosed), errors.Is(err, rfp.ErrDuplicateEmail):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &dispatch):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Result: dispatch.Result})
	case errors.Is(err, context.Canceled):
		// клиент ушёл, отвечать некому
		h.log.Debug("request canceled", zap.String("path", r.URL.Path))
	default:
		h.log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}
