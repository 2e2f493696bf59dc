package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/okandemir/whatsapp-campaign-service/internal/dispatch"
	"github.com/okandemir/whatsapp-campaign-service/internal/domain"
	"github.com/okandemir/whatsapp-campaign-service/internal/service"
	"github.com/okandemir/whatsapp-campaign-service/pkg/response"
	"github.com/okandemir/whatsapp-campaign-service/pkg/validator"
)

type credentialVerifier interface {
	VerifyCredentials(ctx context.Context) error
}

type CampaignHandler struct {
	service    *service.CampaignService
	dispatcher *dispatch.Dispatcher
	whatsapp   credentialVerifier

	// Dispatch runs must outlive the request that starts them; this is the
	// process lifetime context wired in from main.
	ctx context.Context
}

func NewCampaignHandler(
	svc *service.CampaignService,
	dispatcher *dispatch.Dispatcher,
	whatsapp credentialVerifier,
	ctx context.Context,
) *CampaignHandler {
	return &CampaignHandler{
		service:    svc,
		dispatcher: dispatcher,
		whatsapp:   whatsapp,
		ctx:        ctx,
	}
}

type RecipientPayload struct {
	Name        string `json:"name" validate:"required,max=255"`
	PhoneNumber string `json:"phoneNumber" validate:"required,e164"`
}

type CreateCampaignRequest struct {
	Name       string             `json:"name" validate:"required,max=255"`
	Template   string             `json:"template" validate:"required,max=4096"`
	Recipients []RecipientPayload `json:"recipients" validate:"required,min=1,dive"`
	ImageURL   *string            `json:"imageUrl,omitempty" validate:"omitempty,max=512"`
	ImagePath  *string            `json:"imagePath,omitempty" validate:"omitempty,max=512"`
}

// CreateCampaign godoc
// @Summary Create a campaign
// @Description Creates a draft campaign with a template and a fixed recipient list
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param campaign body CreateCampaignRequest true "Campaign to create"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c echo.Context) error {
	var req CreateCampaignRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	recipients := make([]domain.Recipient, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		recipients = append(recipients, domain.Recipient{
			Name:        r.Name,
			PhoneNumber: r.PhoneNumber,
		})
	}

	campaign, err := h.service.Create(c.Request().Context(), req.Name, req.Template, recipients, req.ImageURL, req.ImagePath)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCampaign) {
			return response.BadRequest(c, err)
		}
		return response.InternalServerError(c, err)
	}

	return response.Created(c, "Campaign created successfully", campaign)
}

// GetAllCampaigns godoc
// @Summary List campaigns
// @Description Retrieves a paginated list of campaigns with optional status filter
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Param status query string false "Filter by status (draft, sending, completed, failed, paused)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) GetAllCampaigns(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	var status *domain.CampaignStatus
	if statusStr := c.QueryParam("status"); statusStr != "" {
		parsed := domain.CampaignStatus(statusStr)
		status = &parsed
	}

	campaigns, totalCount, err := h.service.GetAll(c.Request().Context(), status, page, pageSize)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Paginated(c, campaigns, page, pageSize, totalCount)
}

// GetCampaign godoc
// @Summary Get a campaign
// @Description Retrieves one campaign with its recipient list
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param id path int true "Campaign ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/campaigns/{id} [get]
func (h *CampaignHandler) GetCampaign(c echo.Context) error {
	id, err := parseCampaignID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	campaign, err := h.service.GetByID(c.Request().Context(), id)
	if err != nil {
		return response.InternalServerError(c, err)
	}
	if campaign == nil {
		return response.NotFound(c, "Campaign not found")
	}

	return response.Ok(c, campaign)
}

// DeleteCampaign godoc
// @Summary Delete a campaign
// @Description Deletes a campaign and its message logs; refused while the campaign is sending
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param id path int true "Campaign ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/campaigns/{id} [delete]
func (h *CampaignHandler) DeleteCampaign(c echo.Context) error {
	id, err := parseCampaignID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	campaign, err := h.service.Delete(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrCampaignSending) {
			return response.BadRequestWithMessage(c, err.Error())
		}
		return response.InternalServerError(c, err)
	}
	if campaign == nil {
		return response.NotFound(c, "Campaign not found")
	}

	return response.OkWithMessage(c, "Campaign deleted successfully", nil)
}

// SendCampaign godoc
// @Summary Start dispatching a campaign
// @Description Accepts the campaign for background dispatch; one run per campaign at a time
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param id path int true "Campaign ID"
// @Success 202 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns/{id}/send [post]
func (h *CampaignHandler) SendCampaign(c echo.Context) error {
	id, err := parseCampaignID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	if err := h.dispatcher.Start(h.ctx, id); err != nil {
		switch {
		case errors.Is(err, dispatch.ErrCampaignNotFound):
			return response.NotFound(c, "Campaign not found")
		case errors.Is(err, dispatch.ErrAlreadyRunning):
			return response.Conflict(c, err.Error())
		default:
			return response.InternalServerError(c, err)
		}
	}

	return response.Accepted(c, "Campaign sending started", map[string]any{
		"accepted":   true,
		"campaignId": id,
	})
}

// GetCampaignLogs godoc
// @Summary List a campaign's message logs
// @Description Retrieves the paginated per-recipient send log of a campaign
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param id path int true "Campaign ID"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/campaigns/{id}/logs [get]
func (h *CampaignHandler) GetCampaignLogs(c echo.Context) error {
	id, err := parseCampaignID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	logs, totalCount, err := h.service.GetLogs(c.Request().Context(), id, page, pageSize)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Paginated(c, logs, page, pageSize, totalCount)
}

// GetCampaignStats godoc
// @Summary Get a campaign's log statistics
// @Description Returns the campaign's message log counts by status
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param id path int true "Campaign ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns/{id}/stats [get]
func (h *CampaignHandler) GetCampaignStats(c echo.Context) error {
	id, err := parseCampaignID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	pending, sent, failed, err := h.service.GetStats(c.Request().Context(), id)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, map[string]any{
		"pending": pending,
		"sent":    sent,
		"failed":  failed,
		"total":   pending + sent + failed,
	})
}

// GetCachedSentMessages godoc
// @Summary Get a campaign's cached sends from Redis
// @Description Returns the campaign's sent messages still present in the Redis cache
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param id path int true "Campaign ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns/{id}/cached [get]
func (h *CampaignHandler) GetCachedSentMessages(c echo.Context) error {
	id, err := parseCampaignID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	cached, err := h.service.GetCachedSentMessages(c.Request().Context(), id)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, cached)
}

// GetDispatchStatus godoc
// @Summary Get dispatch engine status
// @Description Returns whether any campaign run is in flight and a snapshot of each active run
// @Tags dispatch
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/dispatch/status [get]
func (h *CampaignHandler) GetDispatchStatus(c echo.Context) error {
	return response.Ok(c, h.dispatcher.Status())
}

// VerifyWhatsApp godoc
// @Summary Verify WhatsApp credentials
// @Description Checks the configured phone-number-id and access token against the Cloud API
// @Tags whatsapp
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/whatsapp/verify [get]
func (h *CampaignHandler) VerifyWhatsApp(c echo.Context) error {
	if err := h.whatsapp.VerifyCredentials(c.Request().Context()); err != nil {
		return response.BadRequest(c, err)
	}

	return response.OkWithMessage(c, "WhatsApp connection verified successfully", nil)
}

func parseCampaignID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid campaign id")
	}
	return id, nil
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	pageStr := c.QueryParam("page")
	pageSizeStr := c.QueryParam("pageSize")

	page := defaultPage
	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	pageSize := defaultPageSize
	if pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}

		pageSize = ps
	}

	return page, pageSize, nil
}
