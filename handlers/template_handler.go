package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/okandemir/whatsapp-campaign-service/internal/domain"
	"github.com/okandemir/whatsapp-campaign-service/internal/template"
	"github.com/okandemir/whatsapp-campaign-service/pkg/response"
	"github.com/okandemir/whatsapp-campaign-service/pkg/validator"
)

// TemplateHandler exposes the pure template operations over HTTP.
type TemplateHandler struct{}

func NewTemplateHandler() *TemplateHandler {
	return &TemplateHandler{}
}

type ValidateTemplateRequest struct {
	Template string `json:"template" validate:"required"`
}

type PreviewTemplateRequest struct {
	Template   string             `json:"template" validate:"required,max=4096"`
	Recipients []RecipientPayload `json:"recipients" validate:"required,dive"`
	Limit      *int               `json:"limit,omitempty" validate:"omitempty,min=1,max=20"`
}

// ValidateTemplate godoc
// @Summary Validate a message template
// @Description Checks template length and whether the {name} placeholder is present
// @Tags templates
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param request body ValidateTemplateRequest true "Template to validate"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/templates/validate [post]
func (h *TemplateHandler) ValidateTemplate(c echo.Context) error {
	var req ValidateTemplateRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	return response.Ok(c, template.Validate(req.Template))
}

// PreviewTemplate godoc
// @Summary Preview personalized messages
// @Description Personalizes the template for the first recipients in list order (default limit 5)
// @Tags templates
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param request body PreviewTemplateRequest true "Template and recipients"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/templates/preview [post]
func (h *TemplateHandler) PreviewTemplate(c echo.Context) error {
	var req PreviewTemplateRequest
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

	limit := template.DefaultPreviewLimit
	if req.Limit != nil {
		limit = *req.Limit
	}

	previews, err := template.GeneratePreviews(req.Template, recipients, limit)
	if err != nil {
		return response.BadRequest(c, err)
	}

	return response.Ok(c, map[string]any{
		"previews": previews,
		"total":    len(recipients),
	})
}
