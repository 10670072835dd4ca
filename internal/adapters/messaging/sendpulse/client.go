package sendpulse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"oralplatinum/cobranca/internal/core/contact"
	"oralplatinum/cobranca/internal/core/reminder"
)

// Config holds the bot and template settings of a SendPulse WhatsApp client.
type Config struct {
	BaseURL          string
	BotID            string
	TemplateName     string
	TemplateLanguage string
	// TemplateParams lists the body parameters in template order. Each entry
	// is one of "name", "due_date" or "boleto_url".
	TemplateParams []string
	// ButtonChains holds the to_chain_id payload of each quick-reply button.
	ButtonChains []string
}

// Client talks to the SendPulse WhatsApp API. It implements
// contact.Directory and reminder.Sender.
type Client struct {
	cfg        Config
	auth       *AuthManager
	httpClient HTTPClient
	log        *slog.Logger
}

// NewClient creates a SendPulse WhatsApp client.
func NewClient(cfg Config, auth *AuthManager, httpClient HTTPClient, log *slog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		auth:       auth,
		httpClient: httpClient,
		log:        log,
	}
}

type lookupResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type contactRef struct {
	ID contact.ID `json:"id"`
}

type createContactRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
	BotID string `json:"bot_id"`
}

type createContactResponse struct {
	ID   contact.ID      `json:"id"`
	Data json.RawMessage `json:"data"`
}

type setVariableRequest struct {
	ContactID     contact.ID `json:"contact_id"`
	VariableID    string     `json:"variable_id"`
	VariableValue string     `json:"variable_value"`
}

type sendTemplateRequest struct {
	ContactID contact.ID `json:"contact_id"`
	Template  template   `json:"template"`
}

type template struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []component `json:"components"`
}

type language struct {
	Policy string `json:"policy"`
	Code   string `json:"code"`
}

type component struct {
	Type       string      `json:"type"`
	SubType    string      `json:"sub_type,omitempty"`
	Index      *int        `json:"index,omitempty"`
	Parameters []parameter `json:"parameters"`
}

type parameter struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Payload *buttonPayload `json:"payload,omitempty"`
}

type buttonPayload struct {
	ToChainID string `json:"to_chain_id"`
}

type runFlowRequest struct {
	ContactID    contact.ID        `json:"contact_id"`
	FlowID       string            `json:"flow_id"`
	ExternalData map[string]string `json:"external_data"`
}

// FindByPhone looks the phone up on the bot. It returns contact.ErrNotFound
// when the platform answers 400, an empty body, or a payload without an id.
func (c *Client) FindByPhone(ctx context.Context, phone string) (contact.ID, error) {
	query := url.Values{}
	query.Set("phone", phone)
	query.Set("bot_id", c.cfg.BotID)

	status, body, err := c.call(ctx, http.MethodGet, "/whatsapp/contacts/getByPhone", query, nil)
	if err != nil {
		return "", err
	}

	switch {
	case status == http.StatusBadRequest:
		return "", contact.ErrNotFound
	case status != http.StatusOK:
		return "", fmt.Errorf("lookup contact: unexpected status code %d: %s", status, string(body))
	case len(bytes.TrimSpace(body)) == 0:
		return "", contact.ErrNotFound
	}

	var resp lookupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal lookup response: %w", err)
	}
	if !resp.Success {
		return "", contact.ErrNotFound
	}

	id := idFromData(resp.Data)
	if id.IsZero() {
		return "", contact.ErrNotFound
	}
	return id, nil
}

// Create adds a contact to the bot and returns its id.
func (c *Client) Create(ctx context.Context, nc contact.NewContact) (contact.ID, error) {
	status, body, err := c.call(ctx, http.MethodPost, "/whatsapp/contacts", nil, createContactRequest{
		Phone: nc.Phone,
		Name:  nc.Name,
		BotID: c.cfg.BotID,
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("create contact: unexpected status code %d: %s", status, string(body))
	}

	var resp createContactResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal create response: %w", err)
	}

	id := resp.ID
	if id.IsZero() {
		id = idFromData(resp.Data)
	}
	if id.IsZero() {
		return "", errors.New("create contact: response carries no id")
	}
	return id, nil
}

// SetVariable assigns a bot variable on a contact.
func (c *Client) SetVariable(ctx context.Context, id contact.ID, variableID, value string) error {
	status, body, err := c.call(ctx, http.MethodPost, "/whatsapp/contacts/setVariable", nil, setVariableRequest{
		ContactID:     id,
		VariableID:    variableID,
		VariableValue: value,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("set variable %s: unexpected status code %d: %s", variableID, status, string(body))
	}
	return nil
}

// SendTemplate sends the reminder template to the contact.
func (c *Client) SendTemplate(ctx context.Context, msg reminder.Message) error {
	status, body, err := c.call(ctx, http.MethodPost, "/whatsapp/contacts/sendTemplate", nil, sendTemplateRequest{
		ContactID: msg.ContactID,
		Template:  c.buildTemplate(msg),
	})
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("send template: unexpected status code %d: %s", status, string(body))
	}
	return nil
}

// RunFlow starts a bot flow on the contact.
func (c *Client) RunFlow(ctx context.Context, run reminder.FlowRun) error {
	status, body, err := c.call(ctx, http.MethodPost, "/whatsapp/flows/run", nil, runFlowRequest{
		ContactID:    run.ContactID,
		FlowID:       run.FlowID,
		ExternalData: run.ExternalData,
	})
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("run flow: unexpected status code %d: %s", status, string(body))
	}
	return nil
}

func (c *Client) buildTemplate(msg reminder.Message) template {
	params := make([]parameter, 0, len(c.cfg.TemplateParams))
	for _, name := range c.cfg.TemplateParams {
		var text string
		switch name {
		case "name":
			text = msg.Name
		case "due_date":
			text = msg.DueDate
		case "boleto_url":
			text = msg.BoletoURL
		}
		params = append(params, parameter{Type: "text", Text: text})
	}

	components := []component{{Type: "body", Parameters: params}}
	for i, chain := range c.cfg.ButtonChains {
		index := i
		components = append(components, component{
			Type:    "button",
			SubType: "quick_reply",
			Index:   &index,
			Parameters: []parameter{{
				Type:    "payload",
				Payload: &buttonPayload{ToChainID: chain},
			}},
		})
	}

	return template{
		Name: c.cfg.TemplateName,
		Language: language{
			Policy: "deterministic",
			Code:   c.cfg.TemplateLanguage,
		},
		Components: components,
	}
}

// call performs one authenticated request and returns the status and body.
// Only transport and token failures are returned as errors.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, payload any) (int, []byte, error) {
	token, err := c.auth.GetToken(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("get access token: %w", err)
	}

	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.auth.ClearToken()
		c.log.Warn("sendpulse rejected the access token, cache cleared", "path", path)
	}

	return resp.StatusCode, body, nil
}

// idFromData reads the contact id from a data object or the first element of
// a data array.
func idFromData(raw json.RawMessage) contact.ID {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	if raw[0] == '[' {
		var refs []contactRef
		if err := json.Unmarshal(raw, &refs); err != nil || len(refs) == 0 {
			return ""
		}
		return refs[0].ID
	}

	var ref contactRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return ""
	}
	return ref.ID
}
