package rfp

import (
	"context"
	"errors"
	"fmt"

	"procurement/db"
	"procurement/internal/mail"
	"procurement/internal/metrics"
	"procurement/models"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SendResult - итог рассылки по каждому поставщику
type SendResult struct {
	RFPID  string          `json:"rfpId"`
	Status string          `json:"status"`
	Sent   []string        `json:"sent"`
	Failed []VendorFailure `json:"failed,omitempty"`
}

type VendorFailure struct {
	VendorID string `json:"vendorId"`
	Email    string `json:"email"`
	Error    string `json:"error"`
}

// Send рассылает RFP выбранным поставщикам параллельно и ждёт всех.
// В OPEN переводит, только если письмо ушло каждому. Иначе статус не трогает
// и возвращает *DispatchError со списком неудачных поставщиков.
// Повторная отправка в OPEN допустима.
func (s *Service) Send(ctx context.Context, rfpID string, vendorIDs []string) (*SendResult, error) {
	ids := uniqueIDs(vendorIDs)
	if len(ids) == 0 {
		return nil, invalidf("vendorIds must not be empty")
	}

	r, err := s.Get(ctx, rfpID)
	if err != nil {
		return nil, err
	}
	if r.Status == models.StatusClosed {
		return nil, ErrRFPClosed
	}

	vendors, err := s.resolveVendors(ctx, ids)
	if err != nil {
		return nil, err
	}

	outcomes := s.dispatchAll(ctx, r, vendors)

	result := &SendResult{RFPID: r.ID, Status: r.Status, Sent: []string{}}
	var errs error
	for i, v := range vendors {
		if outcomes[i] == nil {
			result.Sent = append(result.Sent, v.ID)
			metrics.Dispatches.WithLabelValues("sent").Inc()
			continue
		}
		result.Failed = append(result.Failed, VendorFailure{VendorID: v.ID, Email: v.Email, Error: outcomes[i].Error()})
		errs = multierr.Append(errs, fmt.Errorf("vendor %s: %w", v.ID, outcomes[i]))
		metrics.Dispatches.WithLabelValues("failed").Inc()
	}

	if len(result.Failed) > 0 {
		s.log.Warn("rfp dispatch incomplete, status unchanged",
			zap.String("rfp_id", r.ID),
			zap.String("status", r.Status),
			zap.Int("sent", len(result.Sent)),
			zap.Int("failed", len(result.Failed)),
			zap.Error(errs),
		)
		return result, &DispatchError{Result: result, Err: errs}
	}

	updated, err := s.store.TransitionRFP(ctx, r.ID, []string{models.StatusDraft, models.StatusOpen}, models.StatusOpen)
	switch {
	case errors.Is(err, db.ErrStatusConflict):
		// закрыли, пока шла рассылка
		return nil, ErrRFPClosed
	case err != nil:
		return nil, fmt.Errorf("open rfp: %w", err)
	}
	result.Status = updated.Status
	s.log.Info("rfp sent", zap.String("rfp_id", r.ID), zap.Int("vendors", len(result.Sent)))
	return result, nil
}

func (s *Service) resolveVendors(ctx context.Context, ids []string) ([]models.Vendor, error) {
	for _, id := range ids {
		if !db.IsValidID(id) {
			return nil, &NotFoundError{Kind: "vendor", ID: id}
		}
	}
	found, err := s.store.GetVendorsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load vendors: %w", err)
	}
	byID := make(map[string]models.Vendor, len(found))
	for _, v := range found {
		byID[v.ID] = v
	}
	// порядок как в запросе
	vendors := make([]models.Vendor, 0, len(ids))
	for _, id := range ids {
		v, ok := byID[id]
		if !ok {
			return nil, &NotFoundError{Kind: "vendor", ID: id}
		}
		vendors = append(vendors, v)
	}
	return vendors, nil
}

// dispatchAll возвращает ошибку отправки для каждого поставщика (nil - успех).
// Одна неудача не отменяет остальные отправки.
func (s *Service) dispatchAll(ctx context.Context, r *models.RFP, vendors []models.Vendor) []error {
	outcomes := make([]error, len(vendors))
	subject := BuildSubject(r.Title, r.ID)

	var g errgroup.Group
	g.SetLimit(s.dispatch.Concurrency)
	for i, v := range vendors {
		i, v := i, v
		g.Go(func() error {
			outcomes[i] = s.dispatchOne(ctx, r, v, subject)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *Service) dispatchOne(ctx context.Context, r *models.RFP, v models.Vendor, subject string) error {
	if s.dispatch.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.dispatch.Timeout)
		defer cancel()
	}
	raw := mail.BuildMessage(mail.Outgoing{
		FromName: s.smtp.FromName,
		From:     s.smtp.From,
		To:       v.Email,
		Subject:  subject,
		Body:     BuildBody(v.Name, r.Title, r.Description),
	}, s.now())

	if err := s.sender.Send(ctx, []string{v.Email}, subject, raw); err != nil {
		s.log.Warn("rfp dispatch failed", zap.String("rfp_id", r.ID), zap.String("vendor_id", v.ID), zap.Error(err))
		return err
	}
	s.log.Debug("rfp dispatched", zap.String("rfp_id", r.ID), zap.String("vendor_id", v.ID))
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = normalizeID(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
