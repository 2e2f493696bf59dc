package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/okandemir/whatsapp-campaign-service/internal/domain"
	"github.com/okandemir/whatsapp-campaign-service/internal/service"
	"github.com/okandemir/whatsapp-campaign-service/pkg/response"
	validatorpkg "github.com/okandemir/whatsapp-campaign-service/pkg/validator"
)

type stubCampaignRepo struct {
	createErr error
}

func (r *stubCampaignRepo) Create(_ context.Context, _ *domain.Campaign) error {
	return r.createErr
}

func (r *stubCampaignRepo) GetByID(_ context.Context, _ int64) (*domain.Campaign, error) {
	return nil, nil
}

func (r *stubCampaignRepo) GetAll(_ context.Context, _ *domain.CampaignStatus, _, _ int) ([]domain.Campaign, int64, error) {
	return nil, 0, nil
}

func (r *stubCampaignRepo) Delete(_ context.Context, _ int64) error {
	return nil
}

type stubLogRepo struct{}

func (r *stubLogRepo) GetByCampaign(_ context.Context, _ int64, _, _ int) ([]domain.MessageLog, int64, error) {
	return nil, 0, nil
}

func (r *stubLogRepo) GetStats(_ context.Context, _ int64) (int64, int64, int64, error) {
	return 0, 0, 0, nil
}

// TestCreateCampaign_BadJSON verifies that invalid JSON returns 400 Bad Request.
func TestCreateCampaign_BadJSON(t *testing.T) {
	e := echo.New()
	// Validator is not needed here because Bind will fail before Validate is called.
	handler := NewCampaignHandler(nil, nil, nil, nil)

	// Malformed JSON (missing closing quote / brace)
	reqBody := `{"name": "Launch", "template":`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.CreateCampaign(c); err != nil {
		t.Fatalf("CreateCampaign returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	var resp response.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}

	if resp.Success {
		t.Fatalf("expected Success=false, got true")
	}
	if resp.Error == "" {
		t.Fatalf("expected Error to be non-empty")
	}
}

// TestCreateCampaign_MissingTemplate verifies that validation failure returns
// 422 Unprocessable Entity with per-field details.
func TestCreateCampaign_MissingTemplate(t *testing.T) {
	e := echo.New()
	// Use the real custom validator so we exercise the normal flow.
	e.Validator = validatorpkg.New()

	// service is nil on purpose; we want validation to fail before service is called.
	handler := NewCampaignHandler(nil, nil, nil, nil)

	reqBody := `{"name": "Launch", "recipients": [{"name": "Ana", "phoneNumber": "+905551234567"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.CreateCampaign(c); err != nil {
		t.Fatalf("CreateCampaign returned error: %v", err)
	}

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}

	var resp validatorpkg.ValidationErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}

	if resp.Error != "Validation failed" {
		t.Fatalf("expected Error=%q, got %q", "Validation failed", resp.Error)
	}
	if _, ok := resp.Details["template"]; !ok {
		t.Fatalf("expected Details to contain 'template' key, got %v", resp.Details)
	}
}

// TestCreateCampaign_InvalidPhone verifies that a recipient phone number that
// is not E.164 fails validation.
func TestCreateCampaign_InvalidPhone(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()
	handler := NewCampaignHandler(nil, nil, nil, nil)

	reqBody := `{"name": "Launch", "template": "Hi {name}!", "recipients": [{"name": "Ana", "phoneNumber": "notaphone"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.CreateCampaign(c); err != nil {
		t.Fatalf("CreateCampaign returned error: %v", err)
	}

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}

	var resp validatorpkg.ValidationErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if _, ok := resp.Details["phoneNumber"]; !ok {
		t.Fatalf("expected Details to contain 'phoneNumber' key, got %v", resp.Details)
	}
}

// TestCreateCampaign_WhitespaceTemplate verifies that input the struct tags
// cannot catch still comes back as 400, not 500.
func TestCreateCampaign_WhitespaceTemplate(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()

	svc := service.NewCampaignService(&stubCampaignRepo{}, &stubLogRepo{}, nil)
	handler := NewCampaignHandler(svc, nil, nil, nil)

	reqBody := `{"name": "Launch", "template": "   ", "recipients": [{"name": "Ana", "phoneNumber": "+905551234567"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.CreateCampaign(c); err != nil {
		t.Fatalf("CreateCampaign returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

// TestCreateCampaign_StoreFailure verifies that a repository failure surfaces
// as 500, not as a client error.
func TestCreateCampaign_StoreFailure(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()

	svc := service.NewCampaignService(&stubCampaignRepo{createErr: errors.New("db down")}, &stubLogRepo{}, nil)
	handler := NewCampaignHandler(svc, nil, nil, nil)

	reqBody := `{"name": "Launch", "template": "Hi {name}!", "recipients": [{"name": "Ana", "phoneNumber": "+905551234567"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.CreateCampaign(c); err != nil {
		t.Fatalf("CreateCampaign returned error: %v", err)
	}

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

// TestSendCampaign_InvalidID verifies that a non-numeric campaign id returns
// 400 before the dispatcher is touched.
func TestSendCampaign_InvalidID(t *testing.T) {
	e := echo.New()
	handler := NewCampaignHandler(nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/abc/send", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	if err := handler.SendCampaign(c); err != nil {
		t.Fatalf("SendCampaign returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

// TestGetAllCampaigns_BadPagination verifies pagination parameter validation.
func TestGetAllCampaigns_BadPagination(t *testing.T) {
	e := echo.New()
	handler := NewCampaignHandler(nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns?page=0", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.GetAllCampaigns(c); err != nil {
		t.Fatalf("GetAllCampaigns returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
