package rugcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Client screens tokens against the RugCheck report API before the bot
// trades them.
type Client struct {
	baseURL    string
	maxScore   int
	httpClient *http.Client
}

var _ domain.Screener = (*Client)(nil)

// NewClient creates a RugCheck client. Tokens scoring above maxScore, or
// carrying any danger-level risk, are reported unsafe.
func NewClient(baseURL string, maxScore int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		maxScore: maxScore,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type reportSummary struct {
	Score int `json:"score"`
	Risks []struct {
		Name        string `json:"name"`
		Level       string `json:"level"`
		Description string `json:"description"`
	} `json:"risks"`
}

// Check fetches the token's report summary and renders a verdict.
func (c *Client) Check(ctx context.Context, tokenAddress string) (domain.ScreenResult, error) {
	path := fmt.Sprintf("/v1/tokens/%s/report/summary", url.PathEscape(tokenAddress))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return domain.ScreenResult{}, fmt.Errorf("rugcheck: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ScreenResult{}, fmt.Errorf("rugcheck: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ScreenResult{}, fmt.Errorf("rugcheck: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.ScreenResult{}, fmt.Errorf("rugcheck: unexpected status %d", resp.StatusCode)
	}

	var report reportSummary
	if err := json.Unmarshal(body, &report); err != nil {
		return domain.ScreenResult{}, fmt.Errorf("rugcheck: decode report: %w", err)
	}

	for _, risk := range report.Risks {
		if strings.EqualFold(risk.Level, "danger") {
			return domain.ScreenResult{Reason: fmt.Sprintf("danger risk: %s", risk.Name)}, nil
		}
	}
	if c.maxScore > 0 && report.Score > c.maxScore {
		return domain.ScreenResult{Reason: fmt.Sprintf("risk score %d exceeds limit %d", report.Score, c.maxScore)}, nil
	}
	return domain.ScreenResult{Safe: true}, nil
}
