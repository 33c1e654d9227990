package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/confmail/mailbatch/internal/domain"
)

const (
	defaultBaseURL     = "https://api.sendgrid.com"
	defaultSendTimeout = 10 * time.Second
)

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgPersonalization struct {
	To                  []sgAddress   `json:"to"`
	DynamicTemplateData domain.Fields `json:"dynamic_template_data"`
}

type sgAttachment struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

type sgMailRequest struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	TemplateID       string              `json:"template_id"`
	From             sgAddress           `json:"from"`
	Categories       []string            `json:"categories,omitempty"`
	Attachments      []sgAttachment      `json:"attachments,omitempty"`
}

type sgTemplateVersion struct {
	Subject     string `json:"subject"`
	HTMLContent string `json:"html_content"`
}

type sgTemplate struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	UpdatedAt string              `json:"updated_at"`
	Versions  []sgTemplateVersion `json:"versions"`
}

type sgTemplateList struct {
	Templates []sgTemplate `json:"templates"`
}

// SendGridClient talks to the SendGrid v3 API for template inspection and
// transactional sends.
type SendGridClient struct {
	client *resty.Client
	apiKey string

	// verified flips after the first successful credential probe. Access is
	// single-threaded, matching the sequential send pipeline.
	verified bool
}

func NewSendGridClient(apiKey string, timeout time.Duration) *SendGridClient {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	client := resty.New()
	client.SetBaseURL(defaultBaseURL)
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return &SendGridClient{client: client, apiKey: apiKey}
}

// NewSendGridClientWithClient injects a preconfigured resty client, used by
// tests to point at a local server.
func NewSendGridClientWithClient(apiKey string, client *resty.Client) (*SendGridClient, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSendTimeout)
	}
	client.SetRetryCount(0)

	return &SendGridClient{client: client, apiKey: apiKey}, nil
}

// verify probes the API once before the first real call, so a missing or
// underprivileged key is reported as a configuration problem at first use.
func (c *SendGridClient) verify(ctx context.Context) error {
	if c.verified {
		return nil
	}

	if strings.TrimSpace(c.apiKey) == "" {
		return &ProviderError{
			Message: "SENDGRID_API_KEY is not set; put the API key in the environment or .env file",
			Err:     domain.ErrDeliveryForbidden,
		}
	}

	response, err := c.request(ctx).Get("/v3/categories")
	if err != nil {
		return &ProviderError{Message: "credential probe failed", Err: err}
	}

	if isForbidden(response.StatusCode()) {
		return &ProviderError{
			StatusCode: response.StatusCode(),
			Message:    "insufficient permissions; check the SENDGRID_API_KEY value",
			Err:        domain.ErrDeliveryForbidden,
		}
	}
	if !isSuccess(response.StatusCode()) {
		return &ProviderError{
			StatusCode: response.StatusCode(),
			Message:    strings.TrimSpace(response.String()),
			Err:        domain.ErrDeliveryFailed,
		}
	}

	c.verified = true
	return nil
}

func (c *SendGridClient) ListTemplates(ctx context.Context) ([]TemplateInfo, error) {
	if err := c.verify(ctx); err != nil {
		return nil, err
	}

	var list sgTemplateList
	response, err := c.request(ctx).
		SetQueryParam("generations", "legacy,dynamic").
		SetResult(&list).
		Get("/v3/templates")
	if err != nil {
		return nil, &ProviderError{Message: "template listing failed", Err: err}
	}
	if !isSuccess(response.StatusCode()) {
		return nil, c.statusError(response)
	}

	infos := make([]TemplateInfo, 0, len(list.Templates))
	for _, tpl := range list.Templates {
		infos = append(infos, TemplateInfo{
			ID:      tpl.ID,
			Name:    tpl.Name,
			Updated: tpl.UpdatedAt,
		})
	}

	return infos, nil
}

func (c *SendGridClient) GetTemplate(ctx context.Context, templateKey string) (*Template, error) {
	if err := c.verify(ctx); err != nil {
		return nil, err
	}

	var tpl sgTemplate
	response, err := c.request(ctx).
		SetResult(&tpl).
		Get("/v3/templates/" + templateKey)
	if err != nil {
		return nil, &ProviderError{Message: "template fetch failed", Err: err}
	}
	if response.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: template %q", domain.ErrTemplateNotFound, templateKey)
	}
	if !isSuccess(response.StatusCode()) {
		return nil, c.statusError(response)
	}
	if len(tpl.Versions) == 0 {
		return nil, fmt.Errorf("%w: template %q has no versions", domain.ErrTemplateNotFound, templateKey)
	}

	latest := tpl.Versions[len(tpl.Versions)-1]
	return &Template{
		ID:          tpl.ID,
		Name:        tpl.Name,
		Subject:     latest.Subject,
		HTMLContent: latest.HTMLContent,
	}, nil
}

func (c *SendGridClient) Send(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is required", domain.ErrValidation)
	}
	if err := c.verify(ctx); err != nil {
		return err
	}

	body := sgMailRequest{
		Personalizations: []sgPersonalization{
			{
				To:                  []sgAddress{{Email: msg.To.Email, Name: msg.To.Name}},
				DynamicTemplateData: msg.Data,
			},
		},
		TemplateID: msg.TemplateID,
		From:       sgAddress{Email: msg.From.Email, Name: msg.From.Name},
		Categories: msg.Categories,
	}
	for _, attachment := range msg.Attachments {
		body.Attachments = append(body.Attachments, sgAttachment{
			Content:  base64.StdEncoding.EncodeToString(attachment.Content),
			Filename: attachment.Filename,
		})
	}

	response, err := c.request(ctx).
		SetBody(body).
		Post("/v3/mail/send")
	if err != nil {
		return &ProviderError{Message: "send request failed", Err: err}
	}
	if !isSuccess(response.StatusCode()) {
		return c.statusError(response)
	}

	return nil
}

func (c *SendGridClient) request(ctx context.Context) *resty.Request {
	return c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetHeader("Content-Type", "application/json")
}

func (c *SendGridClient) statusError(response *resty.Response) error {
	status := response.StatusCode()
	sentinel := domain.ErrDeliveryFailed
	if isForbidden(status) {
		sentinel = domain.ErrDeliveryForbidden
	}

	return &ProviderError{
		StatusCode: status,
		Message:    strings.TrimSpace(response.String()),
		Err:        sentinel,
	}
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

func isForbidden(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
