package db_test

import (
	"context"
	"os"
	"testing"

	"procurement/db"
	"procurement/db/migrations"
	"procurement/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

// newTestStorage подключается к POSTGRES_CONN и очищает таблицы.
// Без переменной тесты пропускаются.
func newTestStorage(t *testing.T) *db.Storage {
	t.Helper()
	connString := os.Getenv("POSTGRES_CONN")
	if connString == "" {
		t.Skip("POSTGRES_CONN is not set")
	}
	conn, err := sqlx.Connect("postgres", connString)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, migrations.Run(conn.DB))
	_, err = conn.Exec(`TRUNCATE proposal_message, proposal, vendor, rfp`)
	require.NoError(t, err)
	return db.NewStorage(conn)
}

func TestNewID(t *testing.T) {
	id := db.NewID()
	require.Len(t, id, 24)
	require.True(t, db.IsValidID(id))
	require.False(t, db.IsValidID("not-an-id"))
	require.False(t, db.IsValidID(""))
}

func TestStorage_RFPLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	r := &models.RFP{
		Title:       "Laptops",
		Description: "Need 5 laptops, budget $10000",
		Budget:      10000,
		Currency:    "USD",
		Items:       models.LineItems{{Name: "Laptop", Quantity: 5, Specs: "16GB"}},
		Status:      models.StatusDraft,
	}
	require.NoError(t, s.CreateRFP(ctx, r))
	require.True(t, db.IsValidID(r.ID))

	got, err := s.GetRFP(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, 10000.0, got.Budget)
	require.Equal(t, models.LineItems{{Name: "Laptop", Quantity: 5, Specs: "16GB"}}, got.Items)

	opened, err := s.TransitionRFP(ctx, r.ID, []string{models.StatusDraft, models.StatusOpen}, models.StatusOpen)
	require.NoError(t, err)
	require.Equal(t, models.StatusOpen, opened.Status)

	_, err = s.TransitionRFP(ctx, r.ID, []string{models.StatusDraft}, models.StatusOpen)
	require.ErrorIs(t, err, db.ErrStatusConflict)

	_, err = s.TransitionRFP(ctx, db.NewID(), []string{models.StatusDraft}, models.StatusOpen)
	require.ErrorIs(t, err, db.ErrNotFound)

	_, err = s.GetRFP(ctx, db.NewID())
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestStorage_Vendors(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	v := &models.Vendor{Name: "Acme", Email: "Sales@Acme.test"}
	require.NoError(t, s.CreateVendor(ctx, v))
	require.Equal(t, "sales@acme.test", v.Email)

	err := s.CreateVendor(ctx, &models.Vendor{Name: "Acme 2", Email: "SALES@acme.test"})
	require.ErrorIs(t, err, db.ErrDuplicateEmail)

	byEmail, err := s.GetVendorByEmail(ctx, "SALES@ACME.TEST")
	require.NoError(t, err)
	require.Equal(t, v.ID, byEmail.ID)

	found, err := s.GetVendorsByIDs(ctx, []string{v.ID, db.NewID()})
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestStorage_ProposalUpsert(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	r := &models.RFP{Title: "Chairs", Description: "20 chairs", Currency: "USD", Status: models.StatusOpen, Items: models.LineItems{{Name: "Chair", Quantity: 20}}}
	require.NoError(t, s.CreateRFP(ctx, r))
	v := &models.Vendor{Name: "Acme", Email: "sales@acme.test"}
	require.NoError(t, s.CreateVendor(ctx, v))

	msgID := "<m1@acme.test>"
	first := &models.Proposal{RFPID: r.ID, VendorID: v.ID, RawEmailContent: "100", Price: 100, SourceMessageID: &msgID}
	require.NoError(t, s.UpsertProposal(ctx, first))
	require.NoError(t, s.SetProposalScore(ctx, r.ID, v.ID, 77))

	amendID := "<m2@acme.test>"
	second := &models.Proposal{RFPID: r.ID, VendorID: v.ID, RawEmailContent: "90", Price: 90, SourceMessageID: &amendID}
	require.NoError(t, s.UpsertProposal(ctx, second))
	require.Equal(t, first.ID, second.ID)

	proposals, err := s.GetProposalsForRFP(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	require.Equal(t, 90.0, proposals[0].Price)
	require.Equal(t, "Acme", proposals[0].VendorName)
	require.Nil(t, proposals[0].Score)

	// оба письма указывают на одно, уже уточнённое предложение
	for _, id := range []string{msgID, amendID} {
		byMessage, err := s.GetProposalByMessageID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, first.ID, byMessage.ID)
		require.Equal(t, 90.0, byMessage.Price)
	}

	// повторная запись того же письма не дублирует ключ
	require.NoError(t, s.UpsertProposal(ctx, &models.Proposal{RFPID: r.ID, VendorID: v.ID, RawEmailContent: "90", Price: 90, SourceMessageID: &amendID}))

	_, err = s.GetProposalByMessageID(ctx, "<unknown@acme.test>")
	require.ErrorIs(t, err, db.ErrNotFound)

	err = s.SetProposalScore(ctx, r.ID, db.NewID(), 50)
	require.ErrorIs(t, err, db.ErrNotFound)
}
