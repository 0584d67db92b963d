package rfp

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"procurement/db"
	"procurement/internal/metrics"
	"procurement/models"

	"go.uber.org/zap"
)

// Reply - ответ поставщика, пришедший почтой или через webhook
type Reply struct {
	VendorEmail string
	Body        string
	RFPID       string
	// MessageID - Message-ID письма; пустой для webhook
	MessageID string
}

// RecordProposal сохраняет предложение поставщика по RFP.
// Повторный ответ того же поставщика перезаписывает прежнее предложение.
// Письмо с уже обработанным Message-ID не разбирается повторно.
func (s *Service) RecordProposal(ctx context.Context, reply Reply) (*models.Proposal, error) {
	email := strings.ToLower(strings.TrimSpace(reply.VendorEmail))
	if email == "" {
		return nil, invalidf("sender is required")
	}
	if strings.TrimSpace(reply.Body) == "" {
		return nil, invalidf("body is required")
	}

	if reply.MessageID != "" {
		existing, err := s.store.GetProposalByMessageID(ctx, reply.MessageID)
		switch {
		case err == nil:
			s.log.Info("message already recorded",
				zap.String("message_id", reply.MessageID), zap.String("proposal_id", existing.ID))
			return existing, nil
		case !errors.Is(err, db.ErrNotFound):
			return nil, fmt.Errorf("lookup message: %w", err)
		}
	}

	vendor, err := s.store.GetVendorByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &UnknownVendorError{Email: email}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup vendor: %w", err)
	}

	r, err := s.Get(ctx, reply.RFPID)
	if err != nil {
		return nil, err
	}
	if r.Status == models.StatusClosed {
		return nil, ErrRFPClosed
	}

	data, err := s.extractor.ParseResponse(ctx, reply.Body)
	if err != nil {
		return nil, err
	}

	p := &models.Proposal{
		RFPID:           r.ID,
		VendorID:        vendor.ID,
		VendorName:      vendor.Name,
		RawEmailContent: reply.Body,
		Price:           data.Price,
		Timeline:        data.Timeline,
		Warranty:        data.Warranty,
		Summary:         data.Summary,
	}
	if reply.MessageID != "" {
		p.SourceMessageID = &reply.MessageID
	}
	if err := s.store.UpsertProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("save proposal: %w", err)
	}
	metrics.ProposalsRecorded.Inc()
	s.log.Info("proposal recorded",
		zap.String("rfp_id", r.ID),
		zap.String("vendor_id", vendor.ID),
		zap.String("proposal_id", p.ID),
		zap.Float64("price", p.Price),
	)
	return p, nil
}

// Proposals возвращает предложения по RFP в порядке поступления
func (s *Service) Proposals(ctx context.Context, rfpID string) ([]models.Proposal, error) {
	r, err := s.Get(ctx, rfpID)
	if err != nil {
		return nil, err
	}
	proposals, err := s.store.GetProposalsForRFP(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return proposals, nil
}

// SetScore записывает оценку в предложение пары (rfp, vendor)
func (s *Service) SetScore(ctx context.Context, rfpID, vendorID string, score float64) error {
	rfpID, vendorID = normalizeID(rfpID), normalizeID(vendorID)
	err := s.store.SetProposalScore(ctx, rfpID, vendorID, score)
	if errors.Is(err, db.ErrNotFound) {
		return &NotFoundError{Kind: "proposal", ID: rfpID + "/" + vendorID}
	}
	return err
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && strings.EqualFold(addr.Address, email)
}
