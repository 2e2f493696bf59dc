package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/okandemir/whatsapp-campaign-service/environments"
	"github.com/okandemir/whatsapp-campaign-service/handlers"
	"github.com/okandemir/whatsapp-campaign-service/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	campaignHandler *handlers.CampaignHandler,
	templateHandler *handlers.TemplateHandler,
	uploadHandler *handlers.UploadHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Uploaded campaign images are served back for previews.
	e.Static("/uploads", cfg.Upload.Dir)

	v1 := e.Group("/api/v1", middlewares.APIKeyAuth(cfg.Auth.APIKey))

	campaigns := v1.Group("/campaigns")
	campaigns.POST("", campaignHandler.CreateCampaign)
	campaigns.GET("", campaignHandler.GetAllCampaigns)
	campaigns.GET("/:id", campaignHandler.GetCampaign)
	campaigns.DELETE("/:id", campaignHandler.DeleteCampaign)
	campaigns.POST("/:id/send", campaignHandler.SendCampaign)
	campaigns.GET("/:id/logs", campaignHandler.GetCampaignLogs)
	campaigns.GET("/:id/stats", campaignHandler.GetCampaignStats)
	campaigns.GET("/:id/cached", campaignHandler.GetCachedSentMessages)

	v1.GET("/dispatch/status", campaignHandler.GetDispatchStatus)
	v1.GET("/whatsapp/verify", campaignHandler.VerifyWhatsApp)

	templates := v1.Group("/templates")
	templates.POST("/validate", templateHandler.ValidateTemplate)
	templates.POST("/preview", templateHandler.PreviewTemplate)

	uploads := v1.Group("/uploads")
	uploads.POST("/recipients", uploadHandler.UploadRecipients)
	uploads.POST("/image", uploadHandler.UploadImage)
}
