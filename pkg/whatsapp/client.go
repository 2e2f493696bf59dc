// Package whatsapp wraps the WhatsApp Cloud API send protocol: plain text
// sends, and the two-step upload-media-then-send-image flow for campaigns
// with an attachment.
package whatsapp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/okandemir/whatsapp-campaign-service/environments"
	"github.com/okandemir/whatsapp-campaign-service/internal/domain"
	"github.com/okandemir/whatsapp-campaign-service/pkg/logger"
)

type Client struct {
	httpClient    *resty.Client
	apiURL        string
	phoneNumberID string
}

// Cloud API wire shapes. These must match the documented request/response
// formats exactly; they cross a real network boundary.

type textMessageRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	RecipientType    string      `json:"recipient_type"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             textPayload `json:"text"`
}

type textPayload struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type imageMessageRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Image            imagePayload `json:"image"`
}

type imagePayload struct {
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

type messagesResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type mediaUploadResponse struct {
	ID string `json:"id"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func NewClient(cfg environments.WhatsAppConfig) *Client {
	// No retry policy: a timed-out or rejected send is one failed message,
	// not a reason to re-send.
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.AccessToken)

	return &Client{
		httpClient:    client,
		apiURL:        cfg.APIURL,
		phoneNumberID: cfg.PhoneNumberID,
	}
}

// SendText delivers a plain text message. Provider rejections and transport
// faults are both normalized into the outcome; this never returns an error
// value to callers.
func (c *Client) SendText(ctx context.Context, phoneNumber, body string) domain.SendOutcome {
	payload := textMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               phoneNumber,
		Type:             "text",
		Text: textPayload{
			PreviewURL: true,
			Body:       body,
		},
	}

	return c.postMessage(ctx, payload)
}

// SendImage delivers a previously uploaded image with an optional caption.
func (c *Client) SendImage(ctx context.Context, phoneNumber, mediaID, caption string) domain.SendOutcome {
	payload := imageMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               phoneNumber,
		Type:             "image",
		Image: imagePayload{
			ID:      mediaID,
			Caption: caption,
		},
	}

	return c.postMessage(ctx, payload)
}

func (c *Client) postMessage(ctx context.Context, payload any) domain.SendOutcome {
	var (
		result messagesResponse
		apiErr apiErrorResponse
	)

	url := fmt.Sprintf("%s/%s/messages", c.apiURL, c.phoneNumberID)

	startTime := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetResult(&result).
		SetError(&apiErr).
		Post(url)
	if err != nil {
		return failure(fmt.Sprintf("request failed: %v", err))
	}

	logger.Debugf("WhatsApp send completed in %v (status: %d)", time.Since(startTime), resp.StatusCode())

	if resp.IsError() {
		return failure(errorMessage(resp, &apiErr))
	}

	if len(result.Messages) == 0 {
		return failure(fmt.Sprintf("response contained no message id (status %d)", resp.StatusCode()))
	}

	return domain.SendOutcome{Success: true, MessageID: result.Messages[0].ID}
}

// UploadMedia pushes raw media bytes to the Cloud API and returns the
// assigned media id.
func (c *Client) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	var (
		result mediaUploadResponse
		apiErr apiErrorResponse
	)

	url := fmt.Sprintf("%s/%s/media", c.apiURL, c.phoneNumberID)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"messaging_product": "whatsapp",
			"type":              mimeType,
		}).
		SetFileReader("file", "attachment", bytes.NewReader(data)).
		SetResult(&result).
		SetError(&apiErr).
		Post(url)
	if err != nil {
		return "", fmt.Errorf("media upload request failed: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("media upload rejected: %s", errorMessage(resp, &apiErr))
	}

	if result.ID == "" {
		return "", fmt.Errorf("media upload response contained no id")
	}

	return result.ID, nil
}

// Send is the composite operation used by the dispatcher: with an attachment
// it uploads the media first and sends the body as the image caption; if the
// upload fails the text is never sent on its own. Without an attachment it
// sends plain text.
func (c *Client) Send(ctx context.Context, phoneNumber, body string, attachment *domain.Attachment) domain.SendOutcome {
	if attachment == nil {
		return c.SendText(ctx, phoneNumber, body)
	}

	data, err := os.ReadFile(attachment.Path)
	if err != nil {
		return failure(fmt.Sprintf("failed to read attachment: %v", err))
	}

	mediaID, err := c.UploadMedia(ctx, data, attachment.MimeType)
	if err != nil {
		return failure(fmt.Sprintf("failed to upload image: %v", err))
	}

	return c.SendImage(ctx, phoneNumber, mediaID, body)
}

// VerifyCredentials checks the configured phone-number-id and access token
// against the API. A nil error means the credentials are accepted.
func (c *Client) VerifyCredentials(ctx context.Context) error {
	var apiErr apiErrorResponse

	url := fmt.Sprintf("%s/%s", c.apiURL, c.phoneNumberID)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetError(&apiErr).
		Get(url)
	if err != nil {
		return fmt.Errorf("verification request failed: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("credentials rejected: %s", errorMessage(resp, &apiErr))
	}

	return nil
}

func (c *Client) GetURL() string {
	return c.apiURL
}

func failure(message string) domain.SendOutcome {
	return domain.SendOutcome{Success: false, ErrorMessage: message}
}

func errorMessage(resp *resty.Response, apiErr *apiErrorResponse) string {
	if apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return fmt.Sprintf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
}
