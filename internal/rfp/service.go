// Package rfp ведёт жизненный цикл запросов: создание из свободного текста,
// рассылку поставщикам, приём предложений и закрытие.
//
// Статусы меняются только вперёд (DRAFT -> OPEN -> CLOSED), и только условным
// обновлением в хранилище, без чтения-изменения-записи.
package rfp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"procurement/db"
	"procurement/internal/config"
	"procurement/internal/extraction"
	"procurement/internal/mail"
	"procurement/internal/metrics"
	"procurement/models"

	"go.uber.org/zap"
)

type Store interface {
	CreateRFP(ctx context.Context, r *models.RFP) error
	GetRFP(ctx context.Context, id string) (*models.RFP, error)
	ListRFPs(ctx context.Context) ([]models.RFP, error)
	TransitionRFP(ctx context.Context, id string, from []string, to string) (*models.RFP, error)

	CreateVendor(ctx context.Context, v *models.Vendor) error
	GetVendorByEmail(ctx context.Context, email string) (*models.Vendor, error)
	GetVendorsByIDs(ctx context.Context, ids []string) ([]models.Vendor, error)
	ListVendors(ctx context.Context) ([]models.Vendor, error)

	UpsertProposal(ctx context.Context, p *models.Proposal) error
	GetProposalsForRFP(ctx context.Context, rfpID string) ([]models.Proposal, error)
	GetProposalByMessageID(ctx context.Context, messageID string) (*models.Proposal, error)
	SetProposalScore(ctx context.Context, rfpID, vendorID string, score float64) error
}

type Extractor interface {
	ParseRequest(ctx context.Context, text string) (*extraction.RequestData, error)
	ParseResponse(ctx context.Context, emailBody string) (*extraction.ResponseData, error)
}

type Service struct {
	store     Store
	extractor Extractor
	sender    mail.Sender
	smtp      config.SMTPConfig
	dispatch  config.DispatchConfig
	log       *zap.Logger
	now       func() time.Time
}

func NewService(store Store, extractor Extractor, sender mail.Sender, smtpCfg config.SMTPConfig, dispatchCfg config.DispatchConfig, log *zap.Logger) *Service {
	if dispatchCfg.Concurrency <= 0 {
		dispatchCfg.Concurrency = 1
	}
	return &Service{
		store:     store,
		extractor: extractor,
		sender:    sender,
		smtp:      smtpCfg,
		dispatch:  dispatchCfg,
		log:       log.Named("rfp"),
		now:       time.Now,
	}
}

// Create разбирает текст запроса и сохраняет RFP в статусе DRAFT.
// Исходный текст сохраняется в description без изменений.
func (s *Service) Create(ctx context.Context, text string) (*models.RFP, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalidf("prompt is required")
	}

	data, err := s.extractor.ParseRequest(ctx, text)
	if err != nil {
		return nil, err
	}

	r := &models.RFP{
		Title:       data.Title,
		Description: text,
		Budget:      data.Budget,
		Currency:    data.Currency,
		Deadline:    data.Deadline,
		Items:       models.LineItems(data.Items),
		Status:      models.StatusDraft,
	}
	if err := s.store.CreateRFP(ctx, r); err != nil {
		return nil, fmt.Errorf("create rfp: %w", err)
	}
	metrics.RFPsCreated.Inc()
	s.log.Info("rfp created", zap.String("rfp_id", r.ID), zap.String("title", r.Title), zap.Int("items", len(r.Items)))
	return r, nil
}

// normalizeID: идентификаторы хранятся в нижнем регистре, а ObjectIDFromHex
// принимает и верхний
func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (s *Service) Get(ctx context.Context, id string) (*models.RFP, error) {
	id = normalizeID(id)
	if !db.IsValidID(id) {
		return nil, &NotFoundError{Kind: "rfp", ID: id}
	}
	r, err := s.store.GetRFP(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &NotFoundError{Kind: "rfp", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get rfp: %w", err)
	}
	return r, nil
}

// ListAll возвращает RFP от новых к старым
func (s *Service) ListAll(ctx context.Context) ([]models.RFP, error) {
	rfps, err := s.store.ListRFPs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rfps: %w", err)
	}
	return rfps, nil
}

// Close переводит RFP в CLOSED. После этого рассылка и приём предложений невозможны.
func (s *Service) Close(ctx context.Context, id string) (*models.RFP, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	id = current.ID
	r, err := s.store.TransitionRFP(ctx, id, []string{models.StatusDraft, models.StatusOpen}, models.StatusClosed)
	switch {
	case errors.Is(err, db.ErrStatusConflict):
		return nil, ErrRFPClosed
	case errors.Is(err, db.ErrNotFound):
		return nil, &NotFoundError{Kind: "rfp", ID: id}
	case err != nil:
		return nil, fmt.Errorf("close rfp: %w", err)
	}
	s.log.Info("rfp closed", zap.String("rfp_id", id))
	return r, nil
}

// Vendors

func (s *Service) CreateVendor(ctx context.Context, name, email, contactPerson string) (*models.Vendor, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return nil, invalidf("name is required")
	}
	if email == "" {
		return nil, invalidf("email is required")
	}
	if !validEmail(email) {
		return nil, invalidf("email %q is not a valid address", email)
	}

	v := &models.Vendor{Name: name, Email: email, ContactPerson: strings.TrimSpace(contactPerson)}
	if err := s.store.CreateVendor(ctx, v); err != nil {
		if errors.Is(err, db.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create vendor: %w", err)
	}
	s.log.Info("vendor created", zap.String("vendor_id", v.ID), zap.String("email", v.Email))
	return v, nil
}

func (s *Service) ListVendors(ctx context.Context) ([]models.Vendor, error) {
	vendors, err := s.store.ListVendors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	return vendors, nil
}
