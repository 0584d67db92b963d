package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"procurement/internal/extraction"
	"procurement/internal/handlers"
	"procurement/internal/handlers/testutils"
	"procurement/internal/rfp"
	"procurement/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const rfpID = "507f1f77bcf86cd799439011"

// MockService реализует RFPService и Comparer
type MockService struct {
	CreateFunc         func(ctx context.Context, text string) (*models.RFP, error)
	GetFunc            func(ctx context.Context, id string) (*models.RFP, error)
	SendFunc           func(ctx context.Context, rfpID string, vendorIDs []string) (*rfp.SendResult, error)
	CloseFunc          func(ctx context.Context, id string) (*models.RFP, error)
	RecordProposalFunc func(ctx context.Context, reply rfp.Reply) (*models.Proposal, error)
	CreateVendorFunc   func(ctx context.Context, name, email, contactPerson string) (*models.Vendor, error)
	CompareFunc        func(ctx context.Context, rfpID string) (*models.ComparisonReport, error)
}

func (m *MockService) Create(ctx context.Context, text string) (*models.RFP, error) {
	return m.CreateFunc(ctx, text)
}

func (m *MockService) Get(ctx context.Context, id string) (*models.RFP, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return &models.RFP{ID: id, Title: "Laptops", Status: models.StatusDraft}, nil
}

func (m *MockService) ListAll(ctx context.Context) ([]models.RFP, error) {
	return []models.RFP{{ID: rfpID, Title: "Sample RFP", Status: models.StatusOpen}}, nil
}

func (m *MockService) Send(ctx context.Context, rfpID string, vendorIDs []string) (*rfp.SendResult, error) {
	return m.SendFunc(ctx, rfpID, vendorIDs)
}

func (m *MockService) Close(ctx context.Context, id string) (*models.RFP, error) {
	if m.CloseFunc != nil {
		return m.CloseFunc(ctx, id)
	}
	return &models.RFP{ID: id, Status: models.StatusClosed}, nil
}

func (m *MockService) Proposals(ctx context.Context, rfpID string) ([]models.Proposal, error) {
	return []models.Proposal{{ID: "p1", RFPID: rfpID, VendorName: "Acme"}}, nil
}

func (m *MockService) RecordProposal(ctx context.Context, reply rfp.Reply) (*models.Proposal, error) {
	return m.RecordProposalFunc(ctx, reply)
}

func (m *MockService) CreateVendor(ctx context.Context, name, email, contactPerson string) (*models.Vendor, error) {
	return m.CreateVendorFunc(ctx, name, email, contactPerson)
}

func (m *MockService) ListVendors(ctx context.Context) ([]models.Vendor, error) {
	return []models.Vendor{{ID: "v1", Name: "Acme", Email: "sales@acme.test"}}, nil
}

func (m *MockService) Compare(ctx context.Context, rfpID string) (*models.ComparisonReport, error) {
	return m.CompareFunc(ctx, rfpID)
}

func newHandler(m *MockService) *handlers.Handler {
	return handlers.NewHandler(m, m, 0, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, string) {
	t.Helper()
	return testutils.Serve(t, h, testutils.NewJSONRequest(method, path, body))
}

func TestPingHandler(t *testing.T) {
	router := handlers.NewRouter(newHandler(&MockService{}), nil)
	status, body := do(t, router, http.MethodGet, "/api/ping", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body)
}

func TestGetRFPsHandler(t *testing.T) {
	router := handlers.NewRouter(newHandler(&MockService{}), nil)
	status, body := do(t, router, http.MethodGet, "/api/rfps", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "Sample RFP")
}

func TestCreateRFPHandler(t *testing.T) {
	mock := &MockService{
		CreateFunc: func(ctx context.Context, text string) (*models.RFP, error) {
			require.Equal(t, "Need 5 laptops", text)
			return &models.RFP{ID: rfpID, Title: "Laptops", Description: text, Status: models.StatusDraft}, nil
		},
	}
	handler := newHandler(mock)

	req := httptest.NewRequest(http.MethodPost, "/api/rfp", strings.NewReader(`{"prompt":"Need 5 laptops"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.CreateRFPHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	var got models.RFP
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))

	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Equal(t, "DRAFT", got.Status)
	require.Equal(t, "Laptops", got.Title)
}

func TestCreateRFPHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "bad json", body: `{"prompt":`, wantStatus: http.StatusBadRequest},
		{name: "empty prompt", body: `{"prompt":""}`, err: rfp.ErrInvalidInput, wantStatus: http.StatusBadRequest},
		{
			name:       "extraction failed",
			body:       `{"prompt":"???"}`,
			err:        &extraction.ExtractionError{Op: extraction.OpParseRequest, Attempts: 2, Err: errors.New("bad")},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{name: "storage down", body: `{"prompt":"x"}`, err: errors.New("connection refused"), wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockService{
				CreateFunc: func(ctx context.Context, text string) (*models.RFP, error) { return nil, tt.err },
			}
			status, body := do(t, handlers.NewRouter(newHandler(mock), nil), http.MethodPost, "/api/rfp", tt.body)
			require.Equal(t, tt.wantStatus, status)
			require.Contains(t, body, `"error"`)
			require.NotContains(t, body, "connection refused")
		})
	}
}

func TestCreateRFPHandler_BodyTooLarge(t *testing.T) {
	mock := &MockService{
		CreateFunc: func(ctx context.Context, text string) (*models.RFP, error) { return &models.RFP{}, nil },
	}
	handler := handlers.NewHandler(mock, mock, 16, zap.NewNop())
	status, _ := do(t, handlers.NewRouter(handler, nil), http.MethodPost, "/api/rfp", `{"prompt":"`+strings.Repeat("x", 64)+`"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, status)
}

func TestSendRFPHandler(t *testing.T) {
	mock := &MockService{
		SendFunc: func(ctx context.Context, id string, vendorIDs []string) (*rfp.SendResult, error) {
			require.Equal(t, rfpID, id)
			require.Equal(t, []string{"a", "b"}, vendorIDs)
			return &rfp.SendResult{RFPID: id, Status: models.StatusOpen, Sent: vendorIDs}, nil
		},
	}
	status, body := do(t, handlers.NewRouter(newHandler(mock), nil), http.MethodPost, "/api/rfp/send",
		`{"rfpId":"`+rfpID+`","vendorIds":["a","b"]}`)
	require.Equal(t, http.StatusOK, status)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Equal(t, "RFP sent to 2 vendor(s)", got["message"])
	require.Equal(t, "OPEN", got["status"])
}

func TestSendRFPHandler_PartialFailure(t *testing.T) {
	mock := &MockService{
		SendFunc: func(ctx context.Context, id string, vendorIDs []string) (*rfp.SendResult, error) {
			res := &rfp.SendResult{
				RFPID:  id,
				Status: models.StatusDraft,
				Sent:   []string{"a"},
				Failed: []rfp.VendorFailure{{VendorID: "b", Email: "b@x.test", Error: "550 rejected"}},
			}
			return res, &rfp.DispatchError{Result: res, Err: errors.New("550 rejected")}
		},
	}
	status, body := do(t, handlers.NewRouter(newHandler(mock), nil), http.MethodPost, "/api/rfp/send",
		`{"rfpId":"`+rfpID+`","vendorIds":["a","b"]}`)
	require.Equal(t, http.StatusBadGateway, status)

	var got struct {
		Error  string         `json:"error"`
		Result rfp.SendResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Equal(t, "DRAFT", got.Result.Status)
	require.Len(t, got.Result.Failed, 1)
	require.Equal(t, "b", got.Result.Failed[0].VendorID)
}

func TestSendRFPHandler_Closed(t *testing.T) {
	mock := &MockService{
		SendFunc: func(ctx context.Context, id string, vendorIDs []string) (*rfp.SendResult, error) {
			return nil, rfp.ErrRFPClosed
		},
	}
	status, _ := do(t, handlers.NewRouter(newHandler(mock), nil), http.MethodPost, "/api/rfp/send", `{"rfpId":"x","vendorIds":["a"]}`)
	require.Equal(t, http.StatusConflict, status)
}

func TestGetRFPHandler_NotFound(t *testing.T) {
	mock := &MockService{
		GetFunc: func(ctx context.Context, id string) (*models.RFP, error) {
			return nil, &rfp.NotFoundError{Kind: "rfp", ID: id}
		},
	}
	handler := newHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/api/rfp/nope", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"id": "nope"})
	w := httptest.NewRecorder()

	handler.GetRFPHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusNotFound, res.StatusCode)
	require.Contains(t, string(body), `rfp \"nope\" not found`)
}

func TestCompareHandler(t *testing.T) {
	mock := &MockService{
		CompareFunc: func(ctx context.Context, id string) (*models.ComparisonReport, error) {
			return &models.ComparisonReport{
				RFP:        &models.RFP{ID: id},
				Proposals:  []models.Proposal{{ID: "p1", VendorID: "v1"}},
				AIAnalysis: []models.Ranking{{VendorID: "v1", Score: 88, Reason: "best"}},
			}, nil
		},
	}
	handler := newHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/api/rfp/"+rfpID+"/compare", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"id": rfpID})
	w := httptest.NewRecorder()

	handler.CompareHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	var got map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, got, "rfp")
	require.Contains(t, got, "proposals")
	require.Contains(t, string(got["aiAnalysis"]), `"vendor_id":"v1"`)
}

func TestCloseAndProposalsRoutes(t *testing.T) {
	router := handlers.NewRouter(newHandler(&MockService{}), nil)

	status, body := do(t, router, http.MethodPost, "/api/rfp/"+rfpID+"/close", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "CLOSED")

	status, body = do(t, router, http.MethodGet, "/api/rfp/"+rfpID+"/proposals", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "Acme")
}

func TestVendorHandlers(t *testing.T) {
	mock := &MockService{
		CreateVendorFunc: func(ctx context.Context, name, email, contactPerson string) (*models.Vendor, error) {
			if email == "dup@acme.test" {
				return nil, rfp.ErrDuplicateEmail
			}
			return &models.Vendor{ID: "v2", Name: name, Email: email, ContactPerson: contactPerson}, nil
		},
	}
	router := handlers.NewRouter(newHandler(mock), nil)

	status, body := do(t, router, http.MethodPost, "/api/vendor", `{"name":"Bolt","email":"q@bolt.test","contactPerson":"Ann"}`)
	require.Equal(t, http.StatusCreated, status)
	require.Contains(t, body, `"contactPerson":"Ann"`)

	status, _ = do(t, router, http.MethodPost, "/api/vendor", `{"name":"Dup","email":"dup@acme.test"}`)
	require.Equal(t, http.StatusConflict, status)

	status, body = do(t, router, http.MethodGet, "/api/vendors", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "sales@acme.test")
}

func TestInboundEmailHandler(t *testing.T) {
	var got rfp.Reply
	mock := &MockService{
		RecordProposalFunc: func(ctx context.Context, reply rfp.Reply) (*models.Proposal, error) {
			got = reply
			if reply.VendorEmail == "stranger@nowhere.test" {
				return nil, &rfp.UnknownVendorError{Email: reply.VendorEmail}
			}
			return &models.Proposal{ID: "p1", RFPID: reply.RFPID, Price: 9500}, nil
		},
	}
	router := handlers.NewRouter(newHandler(mock), nil)

	status, body := do(t, router, http.MethodPost, "/api/webhook/email",
		`{"sender":"Acme <sales@acme.test>","subject":"Re: Quote","body":"$9,500","rfpId":"`+rfpID+`"}`)
	require.Equal(t, http.StatusCreated, status)
	require.Contains(t, body, `"extractedPrice":9500`)
	require.Equal(t, "sales@acme.test", got.VendorEmail)
	require.Equal(t, rfpID, got.RFPID)

	// без rfpId идентификатор берётся из темы
	status, _ = do(t, router, http.MethodPost, "/api/webhook/email",
		`{"sender":"sales@acme.test","subject":"Re: Quote [Ref:`+rfpID+`]","body":"$9,500"}`)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, rfpID, got.RFPID)

	status, _ = do(t, router, http.MethodPost, "/api/webhook/email", `{"sender":"sales@acme.test","subject":"hello","body":"x"}`)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, router, http.MethodPost, "/api/webhook/email",
		`{"sender":"stranger@nowhere.test","subject":"Re","body":"x","rfpId":"`+rfpID+`"}`)
	require.Equal(t, http.StatusUnprocessableEntity, status)
}
