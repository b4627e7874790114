// Package wikidata looks up catalogue entities in the Wikidata action API.
package wikidata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/substancewiki/catalog-cli/internal/resilience"
)

const (
	defaultBaseURL   = "https://www.wikidata.org/w/api.php"
	defaultUserAgent = "substancewiki-catalog/1.0"

	// Wikidata property holding the PubChem compound identifier.
	propPubChemCID = "P662"
)

// ErrNotFound is returned when an entity id does not exist.
var ErrNotFound = eris.New("wikidata: entity not found")

// Client performs entity lookups against Wikidata.
type Client interface {
	GetEntity(ctx context.Context, qid string) (*Entity, error)
	SearchByName(ctx context.Context, name string) ([]SearchResult, error)
}

// Entity is the subset of a Wikidata item the pipeline consumes.
type Entity struct {
	QID         string `json:"qid"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	PubChemCID  string `json:"pubchem_cid,omitempty"`
}

// SearchResult is one hit from wbsearchentities.
type SearchResult struct {
	QID         string `json:"qid"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithUserAgent overrides the default User-Agent header. Wikimedia asks
// API consumers to identify themselves with a contact address.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the default retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	retry     resilience.RetryConfig
}

// NewClient creates a Wikidata API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type entitiesResponse struct {
	Entities map[string]entityPayload `json:"entities"`
	Error    *apiError                `json:"error,omitempty"`
}

type entityPayload struct {
	ID           string                `json:"id"`
	Missing      *string               `json:"missing,omitempty"`
	Labels       map[string]langValue  `json:"labels"`
	Descriptions map[string]langValue  `json:"descriptions"`
	Claims       map[string][]claimRow `json:"claims"`
}

type langValue struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type claimRow struct {
	MainSnak struct {
		DataValue struct {
			Value json.RawMessage `json:"value"`
		} `json:"datavalue"`
	} `json:"mainsnak"`
}

type searchResponse struct {
	Search []struct {
		ID          string `json:"id"`
		Label       string `json:"label"`
		Description string `json:"description"`
	} `json:"search"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

// GetEntity fetches label, description, and the PubChem CID claim for a QID.
// Returns ErrNotFound when the entity does not exist.
func (c *httpClient) GetEntity(ctx context.Context, qid string) (*Entity, error) {
	if qid == "" {
		return nil, eris.New("wikidata: empty entity id")
	}

	q := url.Values{}
	q.Set("action", "wbgetentities")
	q.Set("ids", qid)
	q.Set("props", "labels|descriptions|claims")
	q.Set("languages", "en")
	q.Set("format", "json")

	var result entitiesResponse
	if err := c.get(ctx, q, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		if result.Error.Code == "no-such-entity" {
			return nil, ErrNotFound
		}
		return nil, eris.Errorf("wikidata: api error %s: %s", result.Error.Code, result.Error.Info)
	}

	payload, ok := result.Entities[qid]
	if !ok || payload.Missing != nil {
		return nil, ErrNotFound
	}

	e := &Entity{
		QID:         qid,
		Label:       payload.Labels["en"].Value,
		Description: payload.Descriptions["en"].Value,
	}
	if claims, ok := payload.Claims[propPubChemCID]; ok && len(claims) > 0 {
		var cid string
		if err := json.Unmarshal(claims[0].MainSnak.DataValue.Value, &cid); err == nil {
			e.PubChemCID = cid
		}
	}
	return e, nil
}

// SearchByName runs wbsearchentities for a free-text name.
func (c *httpClient) SearchByName(ctx context.Context, name string) ([]SearchResult, error) {
	if name == "" {
		return nil, eris.New("wikidata: empty search term")
	}

	q := url.Values{}
	q.Set("action", "wbsearchentities")
	q.Set("search", name)
	q.Set("language", "en")
	q.Set("type", "item")
	q.Set("limit", "5")
	q.Set("format", "json")

	var result searchResponse
	if err := c.get(ctx, q, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, eris.Errorf("wikidata: api error %s: %s", result.Error.Code, result.Error.Info)
	}

	out := make([]SearchResult, 0, len(result.Search))
	for _, s := range result.Search {
		out = append(out, SearchResult{QID: s.ID, Label: s.Label, Description: s.Description})
	}
	return out, nil
}

func (c *httpClient) get(ctx context.Context, q url.Values, out any) error {
	return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.getOnce(ctx, q, out)
	})
}

func (c *httpClient) getOnce(ctx context.Context, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "wikidata: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "wikidata: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "wikidata: read response")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("wikidata: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "wikidata: unmarshal response")
	}
	return nil
}
