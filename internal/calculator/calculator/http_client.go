package calculator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Vodeneev/surebet/internal/pkg/models"
)

// HTTPMatchesClient fetches matches from parser's /matches endpoint
type HTTPMatchesClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ MatchesSource = (*HTTPMatchesClient)(nil)

func NewHTTPMatchesClient(baseURL string) *HTTPMatchesClient {
	return &HTTPMatchesClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: fetchTimeout,
		},
	}
}

// matchesResponse represents the response from /matches endpoint
type matchesResponse struct {
	Matches []models.Match `json:"matches"`
	Meta    struct {
		Count    int    `json:"count"`
		Duration string `json:"duration"`
		Source   string `json:"source"`
	} `json:"meta"`
}

// GetMatches fetches all matches of all bookmakers from the parser
func (c *HTTPMatchesClient) GetMatches(ctx context.Context) ([]models.Match, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrParserNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/matches", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch matches: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var matchesResp matchesResponse
	if err := json.NewDecoder(resp.Body).Decode(&matchesResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return matchesResp.Matches, nil
}
