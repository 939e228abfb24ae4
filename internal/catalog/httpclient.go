package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dmitrijs2005/palstore/internal/retryx"
)

// HTTPClient talks to the catalog service over HTTP/JSON.
type HTTPClient struct {
	baseURL string
	token   func() string
	hc      *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a catalog client for the given base URL. token may be
// nil for anonymous access; when set it is called per request so rotated
// tokens are picked up without rebuilding the client.
func NewHTTPClient(baseURL string, timeout time.Duration, token func() string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		hc:      &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Search(ctx context.Context, q Query) (*Page, error) {
	var page Page
	if err := c.getJSON(ctx, "/api/pals", queryValues(q), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *HTTPClient) GetByID(ctx context.Context, id string) (*Item, error) {
	var item Item
	if err := c.getJSON(ctx, "/api/pals/"+url.PathEscape(id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *HTTPClient) GetLibrary(ctx context.Context, q Query) (*Page, error) {
	var page Page
	if err := c.getJSON(ctx, "/api/library", queryValues(q), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *HTTPClient) GetMyItems(ctx context.Context, q Query) (*Page, error) {
	var page Page
	if err := c.getJSON(ctx, "/api/my-pals", queryValues(q), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *HTTPClient) GetCategories(ctx context.Context) ([]Category, error) {
	var cats []Category
	if err := c.getJSON(ctx, "/api/categories", nil, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

func (c *HTTPClient) GetTags(ctx context.Context, q Query) ([]Tag, error) {
	var tags []Tag
	if err := c.getJSON(ctx, "/api/tags", queryValues(q), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func (c *HTTPClient) CheckOwnership(ctx context.Context, id string) (*Ownership, error) {
	var own Ownership
	if err := c.getJSON(ctx, "/api/pals/"+url.PathEscape(id)+"/ownership", nil, &own); err != nil {
		return nil, err
	}
	return &own, nil
}

func queryValues(q Query) url.Values {
	v := url.Values{}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Tag != "" {
		v.Set("tag", q.Tag)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// getJSON performs a GET and decodes the 2xx body into out. Non-2xx
// responses become *retryx.APIError carrying the body's "message" or
// "error" field and any Retry-After hint.
func (c *HTTPClient) getJSON(ctx context.Context, path string, vals url.Values, out any) error {
	u := c.baseURL + path
	if len(vals) > 0 {
		u += "?" + vals.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func newAPIError(resp *http.Response, body []byte) *retryx.APIError {
	aerr := &retryx.APIError{StatusCode: resp.StatusCode}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Message != "" {
			aerr.Message = eb.Message
		} else if eb.Error != "" {
			aerr.Message = eb.Error
		}
	}

	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			aerr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return aerr
}
