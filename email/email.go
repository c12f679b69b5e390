// Package email sends invitation mail through the FlowCraft email
// endpoint. The endpoint holds the transactional-email provider
// credential; this client authenticates with the public anon key only.
// Delivery failures are reported to the caller, which downgrades them to
// warnings; mail is best-effort and never rolls back an invitation.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flowcraft-app/flowcraft-go/config"
	"github.com/flowcraft-app/flowcraft-go/httpclient"
)

// Invitation is the payload the endpoint expects. FromEmail and FromName
// override the endpoint's configured sender when set.
type Invitation struct {
	To              string `json:"to"`
	ProjectName     string `json:"projectName"`
	Role            string `json:"role"`
	InvitationToken string `json:"invitationToken"`
	InviterEmail    string `json:"inviterEmail"`
	CustomMessage   string `json:"customMessage,omitempty"`
	SiteURL         string `json:"siteUrl"`
	FromEmail       string `json:"fromEmail,omitempty"`
	FromName        string `json:"fromName,omitempty"`
}

// SendResult is the endpoint's response.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	ErrorMsg  string `json:"error"`
}

// Client talks to the invitation-email endpoint.
type Client struct {
	endpoint  string
	bearer    string
	siteURL   string
	fromEmail string
	fromName  string
	http      *httpclient.Client
}

// New builds an email client. bearer is the public anon key.
func New(cfg config.EmailConfig, bearer string, hc *httpclient.Client) *Client {
	if hc == nil {
		hc = httpclient.New(nil)
	}
	return &Client{
		endpoint:  cfg.EndpointURL,
		bearer:    bearer,
		siteURL:   cfg.SiteURL,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		http:      hc,
	}
}

// SiteURL returns the public site origin used in invitation links.
func (c *Client) SiteURL() string {
	return c.siteURL
}

// SendInvitation posts the invitation and returns the endpoint's result.
// Any non-success outcome comes back as an error for the caller to
// downgrade.
func (c *Client) SendInvitation(ctx context.Context, inv Invitation) (*SendResult, error) {
	if inv.SiteURL == "" {
		inv.SiteURL = c.siteURL
	}
	if inv.FromEmail == "" {
		inv.FromEmail = c.fromEmail
	}
	if inv.FromName == "" {
		inv.FromName = c.fromName
	}

	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(inv); err != nil {
		return nil, fmt.Errorf("failed to encode email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Email sending failed: %w", err)
	}

	raw, err := c.http.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("Email sending failed: %w", err)
	}

	result := &SendResult{}
	if err := json.Unmarshal(raw, result); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("Email sending failed: %s", resp.Status)
		}
		return nil, fmt.Errorf("Email sending failed: unreadable response: %w", err)
	}

	if resp.StatusCode >= 400 || !result.Success {
		msg := result.ErrorMsg
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("Email sending failed: %s", msg)
	}
	return result, nil
}
