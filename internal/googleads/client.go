package googleads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"

	"adsinsight/internal/config"
)

// APIError is a non-2xx answer from the Google Ads REST endpoint.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("google ads api: %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// Stale reports whether the connection used for the call should be dropped.
func (e *APIError) Stale() bool {
	switch e.StatusCode {
	case fasthttp.StatusUnauthorized, fasthttp.StatusForbidden, fasthttp.StatusNotFound:
		return true
	}
	return false
}

// Client issues paged GAQL search requests.
type Client struct {
	http           *fasthttp.Client
	baseURL        string
	version        string
	developerToken string
	accessToken    string
}

func NewClient(cfg config.GoogleAdsConfig) *Client {
	return &Client{
		http:           &fasthttp.Client{Name: "adsinsight"},
		baseURL:        strings.TrimRight(cfg.APIBaseURL, "/"),
		version:        cfg.APIVersion,
		developerToken: cfg.DeveloperToken,
		accessToken:    cfg.AccessToken,
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.developerToken != "" && c.accessToken != ""
}

type searchRequest struct {
	Query     string `json:"query"`
	PageToken string `json:"pageToken,omitempty"`
}

type searchResponse struct {
	Results       []SearchResult `json:"results"`
	NextPageToken string         `json:"nextPageToken"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// SearchResult is one GAQL result row. The REST API encodes int64 fields as
// JSON strings, so numbers are decoded as json.Number.
type SearchResult struct {
	Campaign struct {
		ID                     json.Number `json:"id"`
		Name                   string      `json:"name"`
		Status                 string      `json:"status"`
		AdvertisingChannelType string      `json:"advertisingChannelType"`
	} `json:"campaign"`
	CampaignBudget struct {
		AmountMicros json.Number `json:"amountMicros"`
	} `json:"campaignBudget"`
	Segments struct {
		Date string `json:"date"`
	} `json:"segments"`
	Metrics struct {
		Impressions           json.Number `json:"impressions"`
		Clicks                json.Number `json:"clicks"`
		CostMicros            json.Number `json:"costMicros"`
		Conversions           json.Number `json:"conversions"`
		ConversionsValue      json.Number `json:"conversionsValue"`
		SearchImpressionShare json.Number `json:"searchImpressionShare"`
	} `json:"metrics"`
}

// Search runs query against the connection's account and follows page
// tokens until the result set is exhausted.
func (c *Client) Search(ctx context.Context, conn Connection, query string) ([]SearchResult, error) {
	if !c.Configured() {
		return nil, errors.New("google ads credentials are not configured")
	}
	customer := strings.ReplaceAll(conn.CustomerID, "-", "")
	if customer == "" {
		return nil, fmt.Errorf("client %s has no google ads customer id", conn.ClientID)
	}
	url := fmt.Sprintf("%s/%s/customers/%s/googleAds:search", c.baseURL, c.version, customer)

	var (
		results []SearchResult
		token   string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := c.searchPage(ctx, url, conn, searchRequest{Query: query, PageToken: token})
		if err != nil {
			return nil, err
		}
		results = append(results, page.Results...)
		if page.NextPageToken == "" {
			return results, nil
		}
		token = page.NextPageToken
	}
}

func (c *Client) searchPage(ctx context.Context, url string, conn Connection, body searchRequest) (*searchResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("developer-token", c.developerToken)
	if login := strings.ReplaceAll(conn.LoginCustomerID, "-", ""); login != "" {
		req.Header.Set("login-customer-id", login)
	}
	req.SetBody(payload)

	if deadline, ok := ctx.Deadline(); ok {
		err = c.http.DoDeadline(req, resp, deadline)
	} else {
		err = c.http.Do(req, resp)
	}
	if err != nil {
		return nil, fmt.Errorf("google ads request failed: %w", err)
	}

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		apiErr := &APIError{StatusCode: code, Message: strings.TrimSpace(string(resp.Body()))}
		var parsed apiErrorBody
		if json.Unmarshal(resp.Body(), &parsed) == nil && parsed.Error.Message != "" {
			apiErr.Message = parsed.Error.Message
			apiErr.Status = parsed.Error.Status
		}
		return nil, apiErr
	}

	var page searchResponse
	if err := json.Unmarshal(resp.Body(), &page); err != nil {
		return nil, fmt.Errorf("invalid google ads response: %w", err)
	}
	return &page, nil
}
