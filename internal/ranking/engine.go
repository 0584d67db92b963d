// Package ranking собирает отчёт сравнения предложений по RFP.
package ranking

import (
	"context"
	"fmt"

	"procurement/internal/extraction"
	"procurement/models"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Reader interface {
	Get(ctx context.Context, id string) (*models.RFP, error)
	Proposals(ctx context.Context, rfpID string) ([]models.Proposal, error)
}

// ScoreWriter пишет оценку в предложение пары (rfp, vendor)
type ScoreWriter interface {
	SetScore(ctx context.Context, rfpID, vendorID string, score float64) error
}

type Ranker interface {
	Rank(ctx context.Context, rfpContext string, candidates []extraction.Candidate) ([]models.Ranking, error)
}

type Engine struct {
	reader Reader
	ranker Ranker
	// scores == nil: оценки не сохраняются
	scores ScoreWriter
	log    *zap.Logger
}

func NewEngine(reader Reader, ranker Ranker, scores ScoreWriter, log *zap.Logger) *Engine {
	return &Engine{reader: reader, ranker: ranker, scores: scores, log: log.Named("ranking")}
}

// Compare возвращает RFP, все его предложения и оценку модели.
// Без предложений модель не вызывается, отчёт помечается NoProposals.
func (e *Engine) Compare(ctx context.Context, rfpID string) (*models.ComparisonReport, error) {
	r, err := e.reader.Get(ctx, rfpID)
	if err != nil {
		return nil, err
	}
	proposals, err := e.reader.Proposals(ctx, rfpID)
	if err != nil {
		return nil, err
	}

	report := &models.ComparisonReport{RFP: r, Proposals: proposals, AIAnalysis: []models.Ranking{}}
	if len(proposals) == 0 {
		report.NoProposals = true
		return report, nil
	}

	rankings, err := e.ranker.Rank(ctx, r.Description, candidates(proposals))
	if err != nil {
		return nil, err
	}
	report.AIAnalysis = rankings

	if e.scores != nil {
		if err := e.persist(ctx, r.ID, rankings); err != nil {
			// отчёт уже готов, сбой записи оценок его не отменяет
			e.log.Warn("failed to persist scores", zap.String("rfp_id", r.ID), zap.Error(err))
		}
	}
	e.log.Info("proposals compared", zap.String("rfp_id", r.ID), zap.Int("proposals", len(proposals)))
	return report, nil
}

func (e *Engine) persist(ctx context.Context, rfpID string, rankings []models.Ranking) error {
	var errs error
	for _, rk := range rankings {
		if err := e.scores.SetScore(ctx, rfpID, rk.VendorID, rk.Score); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("vendor %s: %w", rk.VendorID, err))
		}
	}
	return errs
}

// candidates: имя поставщика, цена и условия "сроки, гарантия"
func candidates(proposals []models.Proposal) []extraction.Candidate {
	out := make([]extraction.Candidate, 0, len(proposals))
	for _, p := range proposals {
		out = append(out, extraction.Candidate{
			VendorID: p.VendorID,
			Vendor:   p.VendorName,
			Price:    p.Price,
			Terms:    p.Timeline + ", " + p.Warranty,
		})
	}
	return out
}
