package clinicorp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"oralplatinum/cobranca/internal/core/charge"
)

const dateLayout = "2006-01-02"

// HTTPClient allows using both standard and traced HTTP clients.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client lists payments from the Clinicorp REST API.
type Client struct {
	baseURL    string
	username   string
	apiToken   string
	httpClient HTTPClient
	log        *slog.Logger
}

// NewClient creates a Clinicorp billing client. baseURL is the API root,
// e.g. https://api.clinicorp.com/rest/v1.
func NewClient(baseURL, username, apiToken string, httpClient HTTPClient, log *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		username:   username,
		apiToken:   apiToken,
		httpClient: httpClient,
		log:        log,
	}
}

// ListPayments implements charge.Provider.
func (c *Client) ListPayments(ctx context.Context, query charge.PaymentQuery) ([]charge.Payment, error) {
	searchType := query.SearchType
	if searchType == "" {
		searchType = charge.SearchByDueDate
	}

	params := url.Values{}
	params.Set("subscriber_id", query.SubscriberID)
	params.Set("from", query.From.Format(dateLayout))
	params.Set("to", query.To.Format(dateLayout))
	params.Set("search_type", searchType)

	endpoint := fmt.Sprintf("%s/payment/list?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var payments []charge.Payment
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payments); err != nil {
			return nil, fmt.Errorf("unmarshal payments: %w", err)
		}
	}

	c.log.Debug("clinicorp payments listed",
		"count", len(payments),
		"from", query.From.Format(dateLayout),
		"to", query.To.Format(dateLayout),
	)

	return payments, nil
}
