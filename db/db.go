package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"procurement/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("vendor email already exists")
	// ErrStatusConflict: условное обновление статуса не нашло строку в ожидаемом статусе
	ErrStatusConflict = errors.New("status conflict")
)

const uniqueViolation = "23505"

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// NewID выдаёт 24-символьный hex идентификатор. Этот формат уже живёт в темах писем
// поставщикам ([Ref:...]), поэтому менять его нельзя.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// IsValidID проверяет формат идентификатора
func IsValidID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// RFP

func (s *Storage) CreateRFP(ctx context.Context, r *models.RFP) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	query := `
        INSERT INTO rfp
            (id, title, description, budget, currency, deadline, items, status)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at, updated_at`
	return s.db.QueryRowContext(ctx, query,
		r.ID, r.Title, r.Description, r.Budget, r.Currency, r.Deadline, r.Items, r.Status).
		Scan(&r.CreatedAt, &r.UpdatedAt)
}

func (s *Storage) GetRFP(ctx context.Context, id string) (*models.RFP, error) {
	r := &models.RFP{}
	query := `SELECT * FROM rfp WHERE id=$1`
	if err := s.db.GetContext(ctx, r, query, id); err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func (s *Storage) ListRFPs(ctx context.Context) ([]models.RFP, error) {
	rfps := []models.RFP{}
	query := `SELECT * FROM rfp ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &rfps, query); err != nil {
		return nil, err
	}
	return rfps, nil
}

// TransitionRFP меняет статус только если текущий статус входит в from.
// Проверка и запись идут одним UPDATE, без чтения-изменения-записи.
func (s *Storage) TransitionRFP(ctx context.Context, id string, from []string, to string) (*models.RFP, error) {
	query, args, err := sqlx.In(`
        UPDATE rfp
        SET status = ?, updated_at = NOW()
        WHERE id = ? AND status IN (?)
        RETURNING *`, to, id, from)
	if err != nil {
		return nil, err
	}
	r := &models.RFP{}
	err = s.db.GetContext(ctx, r, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetRFP(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStatusConflict
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Vendor (Поставщик)

func (s *Storage) CreateVendor(ctx context.Context, v *models.Vendor) error {
	if v.ID == "" {
		v.ID = NewID()
	}
	v.Email = strings.ToLower(strings.TrimSpace(v.Email))
	query := `
        INSERT INTO vendor (id, name, email, contact_person)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query, v.ID, v.Name, v.Email, v.ContactPerson).Scan(&v.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}

func (s *Storage) GetVendorByEmail(ctx context.Context, email string) (*models.Vendor, error) {
	v := &models.Vendor{}
	query := `SELECT * FROM vendor WHERE LOWER(email) = LOWER($1)`
	if err := s.db.GetContext(ctx, v, query, strings.TrimSpace(email)); err != nil {
		return nil, notFound(err)
	}
	return v, nil
}

func (s *Storage) GetVendorsByIDs(ctx context.Context, ids []string) ([]models.Vendor, error) {
	vendors := []models.Vendor{}
	if len(ids) == 0 {
		return vendors, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM vendor WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	if err := s.db.SelectContext(ctx, &vendors, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return vendors, nil
}

func (s *Storage) ListVendors(ctx context.Context) ([]models.Vendor, error) {
	vendors := []models.Vendor{}
	query := `SELECT * FROM vendor ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &vendors, query); err != nil {
		return nil, err
	}
	return vendors, nil
}

// Proposal (Предложение)

// UpsertProposal: одно предложение на пару (rfp, vendor). Повторный ответ
// перезаписывает прежний как уточнённое предложение, оценка сбрасывается.
// Message-ID письма запоминается за предложением навсегда, в том же запросе.
func (s *Storage) UpsertProposal(ctx context.Context, p *models.Proposal) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	query := `
        WITH up AS (
            INSERT INTO proposal
                (id, rfp_id, vendor_id, raw_email_content, extracted_price, extracted_timeline,
                 extracted_warranty, ai_summary, source_message_id)
            VALUES
                ($1, $2, $3, $4, $5, $6, $7, $8, $9)
            ON CONFLICT (rfp_id, vendor_id) DO UPDATE SET
                raw_email_content  = EXCLUDED.raw_email_content,
                extracted_price    = EXCLUDED.extracted_price,
                extracted_timeline = EXCLUDED.extracted_timeline,
                extracted_warranty = EXCLUDED.extracted_warranty,
                ai_summary         = EXCLUDED.ai_summary,
                source_message_id  = EXCLUDED.source_message_id,
                score              = NULL,
                updated_at         = NOW()
            RETURNING id, created_at, updated_at
        ), msg AS (
            INSERT INTO proposal_message (message_id, proposal_id)
            SELECT $9, id FROM up WHERE $9::TEXT IS NOT NULL
            ON CONFLICT (message_id) DO NOTHING
        )
        SELECT id, created_at, updated_at FROM up`
	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.RFPID, p.VendorID, p.RawEmailContent, p.Price, p.Timeline,
		p.Warranty, p.Summary, p.SourceMessageID).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return err
	}
	p.Score = nil
	return nil
}

const proposalColumns = `
        p.id, p.rfp_id, p.vendor_id, v.name AS vendor_name, p.raw_email_content,
        p.extracted_price, p.extracted_timeline, p.extracted_warranty, p.ai_summary,
        p.score, p.source_message_id, p.created_at, p.updated_at`

func (s *Storage) GetProposalsForRFP(ctx context.Context, rfpID string) ([]models.Proposal, error) {
	query := `SELECT` + proposalColumns + `
        FROM proposal p
        JOIN vendor v ON v.id = p.vendor_id
        WHERE p.rfp_id = $1
        ORDER BY p.created_at ASC`
	proposals := []models.Proposal{}
	if err := s.db.SelectContext(ctx, &proposals, query, rfpID); err != nil {
		return nil, err
	}
	return proposals, nil
}

// GetProposalByMessageID ищет предложение, в которое уже вошло письмо с этим
// Message-ID, даже если потом его перезаписал более поздний ответ
func (s *Storage) GetProposalByMessageID(ctx context.Context, messageID string) (*models.Proposal, error) {
	query := `SELECT` + proposalColumns + `
        FROM proposal_message m
        JOIN proposal p ON p.id = m.proposal_id
        JOIN vendor v ON v.id = p.vendor_id
        WHERE m.message_id = $1`
	p := &models.Proposal{}
	if err := s.db.GetContext(ctx, p, query, messageID); err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// SetProposalScore пишет оценку строго в предложение пары (rfp, vendor)
func (s *Storage) SetProposalScore(ctx context.Context, rfpID, vendorID string, score float64) error {
	query := `
        UPDATE proposal
        SET score = $1
        WHERE rfp_id = $2 AND vendor_id = $3`
	res, err := s.db.ExecContext(ctx, query, score, rfpID, vendorID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
