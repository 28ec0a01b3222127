package continuity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// CheckSessionQuery asks the backend for the session bound to the bearer token.
const CheckSessionQuery = "query CheckSessionId { context { data { sessionId } } } "

// GraphQLClient queries the session endpoint over HTTP.
type GraphQLClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewGraphQLClient creates a client for the GraphQL endpoint at endpoint.
// A nil httpClient uses http.DefaultClient.
func NewGraphQLClient(endpoint string, httpClient *http.Client) *GraphQLClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GraphQLClient{endpoint: endpoint, httpClient: httpClient}
}

// QuerySession sends CheckSessionQuery authenticated with tok. GraphQL errors
// come back in the response, not as an error.
func (c *GraphQLClient) QuerySession(ctx context.Context, tok string) (*QueryResponse, error) {
	body, err := json.Marshal(map[string]string{"query": CheckSessionQuery})
	if err != nil {
		return nil, fmt.Errorf("encoding session query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating session query request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending session query: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session query failed: %d", resp.StatusCode)
	}

	var out QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parsing session query response: %w", err)
	}
	return &out, nil
}

// Verify interface compliance.
var _ SessionQuerier = (*GraphQLClient)(nil)
