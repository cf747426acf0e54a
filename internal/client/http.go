package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/kodblock/internal/model"
)

// HTTPClient implements BuilderClient using the kodblock HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

var _ BuilderClient = (*HTTPClient)(nil)

// --- Stateless builder ---

func (c *HTTPClient) ListBlockTypes(ctx context.Context) ([]model.BlockType, error) {
	var resp struct {
		BlockTypes []model.BlockType `json:"block_types"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/block-types", nil, &resp); err != nil {
		return nil, err
	}
	return resp.BlockTypes, nil
}

func (c *HTTPClient) Render(ctx context.Context, req *RenderRequest) (string, error) {
	var resp struct {
		Expression string `json:"expression"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/render", req, &resp); err != nil {
		return "", err
	}
	return resp.Expression, nil
}

func (c *HTTPClient) ValidatePlates(ctx context.Context, input string) (*PlatesResult, error) {
	var resp PlatesResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/plates/validate", map[string]string{"input": input}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) RenderWizard(ctx context.Context, answers map[string]string) (*WizardResult, error) {
	var resp WizardResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/wizard/render", map[string]any{"answers": answers}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Draft CRUD ---

func (c *HTTPClient) CreateDraft(ctx context.Context, req *CreateDraftRequest) (*model.Draft, error) {
	return c.draft(ctx, http.MethodPost, "/v1/drafts", req)
}

func (c *HTTPClient) GetDraft(ctx context.Context, id string) (*model.Draft, error) {
	return c.draft(ctx, http.MethodGet, draftPath(id), nil)
}

func (c *HTTPClient) ListDrafts(ctx context.Context, req *ListDraftsRequest) (*ListDraftsResponse, error) {
	q := url.Values{}
	if req.Search != "" {
		q.Set("search", req.Search)
	}
	if req.CreatedBy != "" {
		q.Set("created_by", req.CreatedBy)
	}
	if req.Sort != "" {
		q.Set("sort", req.Sort)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}

	path := "/v1/drafts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListDraftsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) UpdateDraft(ctx context.Context, id string, req *UpdateDraftRequest) (*model.Draft, error) {
	return c.draft(ctx, http.MethodPatch, draftPath(id), req)
}

func (c *HTTPClient) DeleteDraft(ctx context.Context, id, actor string) error {
	return c.doJSON(ctx, http.MethodDelete, draftPath(id)+actorQuery(actor), nil, nil)
}

func (c *HTTPClient) GetExpression(ctx context.Context, id string, mode model.Mode) (string, error) {
	path := draftPath(id) + "/expression"
	if mode != "" {
		path += "?mode=" + url.QueryEscape(string(mode))
	}
	var resp struct {
		Expression string `json:"expression"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Expression, nil
}

func (c *HTTPClient) GetEvents(ctx context.Context, id string) ([]*model.Event, error) {
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, draftPath(id)+"/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// --- Block editing ---

func (c *HTTPClient) AddBlock(ctx context.Context, id, blockType, actor string) (*model.Draft, error) {
	body := map[string]string{"type": blockType, "actor": actor}
	return c.draft(ctx, http.MethodPost, draftPath(id)+"/blocks", body)
}

func (c *HTTPClient) UpdateBlock(ctx context.Context, id string, index int, req *UpdateBlockRequest) (*model.Draft, error) {
	return c.draft(ctx, http.MethodPatch, blockPath(id, index), req)
}

func (c *HTTPClient) ToggleValue(ctx context.Context, id string, index int, option, actor string) (*model.Draft, error) {
	body := map[string]string{"option": option, "actor": actor}
	return c.draft(ctx, http.MethodPost, blockPath(id, index)+"/toggle", body)
}

func (c *HTTPClient) AddPlates(ctx context.Context, id string, index int, input, actor string) (*AddPlatesResponse, error) {
	body := map[string]string{"input": input, "actor": actor}
	var resp AddPlatesResponse
	if err := c.doJSON(ctx, http.MethodPost, blockPath(id, index)+"/plates", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) RemoveBlock(ctx context.Context, id string, index int, actor string) (*model.Draft, error) {
	return c.draft(ctx, http.MethodDelete, blockPath(id, index)+actorQuery(actor), nil)
}

func (c *HTTPClient) MoveBlock(ctx context.Context, id string, from, to int, actor string) (*model.Draft, error) {
	body := map[string]any{"from": from, "to": to, "actor": actor}
	return c.draft(ctx, http.MethodPost, draftPath(id)+"/move", body)
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

func draftPath(id string) string {
	return "/v1/drafts/" + url.PathEscape(id)
}

func blockPath(id string, index int) string {
	return draftPath(id) + "/blocks/" + strconv.Itoa(index)
}

func actorQuery(actor string) string {
	if actor == "" {
		return ""
	}
	return "?actor=" + url.QueryEscape(actor)
}

func (c *HTTPClient) draft(ctx context.Context, method, path string, body any) (*model.Draft, error) {
	var d model.Draft
	if err := c.doJSON(ctx, method, path, body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Fields     []model.FieldError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error  string             `json:"error"`
			Fields []model.FieldError `json:"fields"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Fields: errResp.Fields}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
