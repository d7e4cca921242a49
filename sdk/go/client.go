package harvestlinksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal HarvestLink HTTP client covering the USSD and SMS
// webhooks and the JSON API.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// USSDReply is one parsed aggregator response.
type USSDReply struct {
	Final   bool
	Message string
}

// Query holds the harvest details sent to the analyse endpoint.
type Query struct {
	Crop     string  `json:"crop"`
	Quantity float64 `json:"quantity"`
	Location string  `json:"location,omitempty"`
	Storage  string  `json:"storage_method,omitempty"`
	Weather  string  `json:"weather_condition,omitempty"`
	Phone    string  `json:"phone,omitempty"`
}

type Buyer struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name"`
	Phone           string `json:"phone,omitempty"`
	CropsInterested string `json:"crops_interested"`
	Location        string `json:"location"`
	PriceRange      string `json:"price_range,omitempty"`
}

// Assessment is the scoring result (partial).
type Assessment struct {
	RiskTier      string   `json:"risk_tier"`
	Confidence    float64  `json:"confidence"`
	PriceEstimate float64  `json:"price_estimate"`
	PriceTrend    string   `json:"price_trend"`
	Advice        []string `json:"advice"`
	Recommend     string   `json:"recommendation"`
	Buyers        []Buyer  `json:"buyers"`
}

type AnalyzeResult struct {
	Assessment   Assessment `json:"assessment"`
	PredictionID string     `json:"prediction_id"`
}

// Session is a live USSD session.
type Session struct {
	ID          string `json:"session_id"`
	PhoneNumber string `json:"phone_number"`
	CurrentStep string `json:"current_step"`
	UpdatedAt   string `json:"updated_at"`
}

// Event represents a log entry.
type Event struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Phone     string         `json:"phone"`
	Payload   map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Dial sends one USSD round trip. text carries every choice so far joined
// by "*", the way aggregators send it.
func (c *Client) Dial(ctx context.Context, sessionID, phone, serviceCode, text string) (USSDReply, error) {
	form := url.Values{
		"sessionId":   {sessionID},
		"phoneNumber": {phone},
		"serviceCode": {serviceCode},
		"text":        {text},
	}
	body, err := c.postForm(ctx, "ussd", form)
	if err != nil {
		return USSDReply{}, err
	}
	return ParseUSSDReply(body)
}

// ParseUSSDReply splits a CON or END body.
func ParseUSSDReply(body string) (USSDReply, error) {
	switch {
	case strings.HasPrefix(body, "CON "):
		return USSDReply{Message: strings.TrimPrefix(body, "CON ")}, nil
	case strings.HasPrefix(body, "END "):
		return USSDReply{Final: true, Message: strings.TrimPrefix(body, "END ")}, nil
	default:
		return USSDReply{}, fmt.Errorf("unexpected ussd reply %q", body)
	}
}

// SendSMS posts an inbound message and returns the reply text.
func (c *Client) SendSMS(ctx context.Context, from, text string) (string, error) {
	body, err := c.postForm(ctx, "sms", url.Values{"From": {from}, "Body": {text}})
	if err != nil {
		return "", err
	}
	var doc struct {
		XMLName xml.Name `xml:"Response"`
		Message string   `xml:"Message"`
	}
	if err := xml.Unmarshal([]byte(body), &doc); err != nil {
		return "", fmt.Errorf("decode twiml: %w", err)
	}
	return doc.Message, nil
}

// Health reports whether the API answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.apiPath("health"), nil, nil)
}

// Analyze runs a loss assessment.
func (c *Client) Analyze(ctx context.Context, q Query) (AnalyzeResult, error) {
	var resp AnalyzeResult
	err := c.do(ctx, http.MethodPost, c.apiPath("analyze"), q, &resp)
	return resp, err
}

// Buyers lists buyers, optionally only those interested in crop.
func (c *Client) Buyers(ctx context.Context, crop string) ([]Buyer, error) {
	endpoint := c.apiPath("buyers")
	if crop != "" {
		endpoint += "?crop=" + url.QueryEscape(crop)
	}
	var resp struct {
		Items []Buyer `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) AddBuyer(ctx context.Context, b Buyer) (Buyer, error) {
	var resp Buyer
	err := c.do(ctx, http.MethodPost, c.apiPath("buyers"), b, &resp)
	return resp, err
}

// Sessions lists live USSD sessions.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var resp struct {
		Items []Session `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.apiPath("sessions"), nil, &resp)
	return resp.Items, err
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.apiPath("sessions/"+url.PathEscape(id)), nil, nil)
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, evtType string, limit int) ([]Event, error) {
	q := url.Values{}
	if evtType != "" {
		q.Set("type", evtType)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := c.apiPath("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c.HTTPClient
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/"+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return string(b), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) apiPath(p string) string {
	base := strings.Trim(c.BasePath, "/")
	if base == "" {
		base = "v0"
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
