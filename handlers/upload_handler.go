package handlers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/okandemir/whatsapp-campaign-service/environments"
	"github.com/okandemir/whatsapp-campaign-service/internal/ingest"
	"github.com/okandemir/whatsapp-campaign-service/pkg/response"
)

var allowedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

type UploadHandler struct {
	config environments.UploadConfig
}

func NewUploadHandler(cfg environments.UploadConfig) *UploadHandler {
	return &UploadHandler{config: cfg}
}

// UploadRecipients godoc
// @Summary Parse a recipient CSV
// @Description Parses an uploaded CSV of name/phone pairs and returns normalized recipients plus per-row errors
// @Tags uploads
// @Accept mpfd
// @Produce json
// @Param x-api-key header string true "API key"
// @Param file formData file true "CSV file (name, phone number)"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/uploads/recipients [post]
func (h *UploadHandler) UploadRecipients(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.BadRequestWithMessage(c, "No file uploaded")
	}

	if err := h.checkSize(fileHeader.Size); err != nil {
		return response.BadRequest(c, err)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return response.InternalServerError(c, err)
	}
	defer src.Close()

	result, err := ingest.ParseRecipients(src)
	if err != nil {
		return response.BadRequest(c, err)
	}

	return response.OkWithMessage(c, "Recipient file parsed successfully", result)
}

// UploadImage godoc
// @Summary Upload a campaign image
// @Description Stores a jpeg/png attachment and returns the path to reference from a campaign
// @Tags uploads
// @Accept mpfd
// @Produce json
// @Param x-api-key header string true "API key"
// @Param file formData file true "Image file (jpg, jpeg, png)"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/uploads/image [post]
func (h *UploadHandler) UploadImage(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.BadRequestWithMessage(c, "No file uploaded")
	}

	if err := h.checkSize(fileHeader.Size); err != nil {
		return response.BadRequest(c, err)
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if _, ok := allowedImageExtensions[ext]; !ok {
		return response.BadRequestWithMessage(c, "Only jpg, jpeg and png images are allowed")
	}

	if err := os.MkdirAll(h.config.Dir, 0o755); err != nil {
		return response.InternalServerError(c, err)
	}

	filename := uuid.NewString() + ext
	destPath := filepath.Join(h.config.Dir, filename)

	src, err := fileHeader.Open()
	if err != nil {
		return response.InternalServerError(c, err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return response.InternalServerError(c, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(destPath)
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Image uploaded successfully", map[string]any{
		"filename": filename,
		"path":     destPath,
		"url":      "/uploads/" + filename,
	})
}

func (h *UploadHandler) checkSize(size int64) error {
	maxBytes := int64(h.config.MaxSizeMB) << 20
	if size > maxBytes {
		return fmt.Errorf("file exceeds maximum size of %d MB", h.config.MaxSizeMB)
	}
	return nil
}
