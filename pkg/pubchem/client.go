// Package pubchem queries the PubChem PUG REST API for compound properties.
package pubchem

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/substancewiki/catalog-cli/internal/resilience"
)

const defaultBaseURL = "https://pubchem.ncbi.nlm.nih.gov/rest/pug"

// ErrNotFound is returned when PubChem has no compound for the query.
// Callers must treat it as an expected outcome, not a provider failure.
var ErrNotFound = eris.New("pubchem: compound not found")

// Client performs compound lookups against PubChem.
type Client interface {
	GetByCID(ctx context.Context, cid string) (*Compound, error)
	GetByName(ctx context.Context, name string) (*Compound, error)
}

// Compound holds the structured properties of a PubChem compound.
type Compound struct {
	CID             int64    `json:"cid"`
	Formula         string   `json:"formula,omitempty"`
	MolecularWeight float64  `json:"molecular_weight,omitempty"`
	IUPACName       string   `json:"iupac_name,omitempty"`
	SMILES          string   `json:"smiles,omitempty"`
	Synonyms        []string `json:"synonyms,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate. PubChem rejects
// clients exceeding 5 requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithRetry overrides the default retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a PubChem PUG REST client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 12 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

const propertyList = "MolecularFormula,MolecularWeight,IUPACName,CanonicalSMILES"

type propertyTableResponse struct {
	PropertyTable struct {
		Properties []struct {
			CID              int64  `json:"CID"`
			MolecularFormula string `json:"MolecularFormula"`
			MolecularWeight  string `json:"MolecularWeight"`
			IUPACName        string `json:"IUPACName"`
			CanonicalSMILES  string `json:"CanonicalSMILES"`
		} `json:"Properties"`
	} `json:"PropertyTable"`
}

type synonymsResponse struct {
	InformationList struct {
		Information []struct {
			CID     int64    `json:"CID"`
			Synonym []string `json:"Synonym"`
		} `json:"Information"`
	} `json:"InformationList"`
}

// GetByCID looks up a compound by its PubChem compound identifier.
func (c *httpClient) GetByCID(ctx context.Context, cid string) (*Compound, error) {
	if cid == "" {
		return nil, eris.New("pubchem: empty cid")
	}
	return c.fetch(ctx, "cid/"+url.PathEscape(cid))
}

// GetByName looks up a compound by name. PubChem resolves common names
// and synonyms to a compound record.
func (c *httpClient) GetByName(ctx context.Context, name string) (*Compound, error) {
	if name == "" {
		return nil, eris.New("pubchem: empty name")
	}
	return c.fetch(ctx, "name/"+url.PathEscape(name))
}

func (c *httpClient) fetch(ctx context.Context, selector string) (*Compound, error) {
	var props propertyTableResponse
	if err := c.get(ctx, "/compound/"+selector+"/property/"+propertyList+"/JSON", &props); err != nil {
		return nil, err
	}
	if len(props.PropertyTable.Properties) == 0 {
		return nil, ErrNotFound
	}

	p := props.PropertyTable.Properties[0]
	compound := &Compound{
		CID:       p.CID,
		Formula:   p.MolecularFormula,
		IUPACName: p.IUPACName,
		SMILES:    p.CanonicalSMILES,
	}
	if w, err := strconv.ParseFloat(p.MolecularWeight, 64); err == nil {
		compound.MolecularWeight = w
	}

	// Synonyms are served from a separate endpoint; failure here is not
	// fatal to the lookup.
	var syn synonymsResponse
	cidStr := strconv.FormatInt(p.CID, 10)
	if err := c.get(ctx, "/compound/cid/"+cidStr+"/synonyms/JSON", &syn); err == nil {
		if len(syn.InformationList.Information) > 0 {
			compound.Synonyms = trimSynonyms(syn.InformationList.Information[0].Synonym, 10)
		}
	}

	return compound, nil
}

// trimSynonyms keeps the first n human-readable synonyms, dropping
// registry numbers and database identifiers.
func trimSynonyms(all []string, n int) []string {
	out := make([]string, 0, n)
	for _, s := range all {
		if len(out) == n {
			break
		}
		if s == "" || looksLikeRegistryID(s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func looksLikeRegistryID(s string) bool {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	// Registry identifiers (CAS, UNII, EC) are mostly digits and dashes.
	return digits*2 > len(s)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.getOnce(ctx, path, out)
	})
}

// getOnce performs one rate-limited request. The limiter sits inside the
// retry loop so backoff attempts also consume rate budget.
func (c *httpClient) getOnce(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "pubchem: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "pubchem: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "pubchem: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "pubchem: read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("pubchem: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "pubchem: unmarshal response")
	}
	return nil
}
