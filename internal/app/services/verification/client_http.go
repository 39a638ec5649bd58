package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	domain "github.com/taskforge/platform/internal/app/domain/verification"
	"github.com/taskforge/platform/pkg/logger"
)

// HTTPClient talks to the execution service's batch endpoint over HTTP.
type HTTPClient struct {
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	log      *logger.Logger
}

// NewHTTPClient constructs a client for the given batch endpoint.
func NewHTTPClient(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*HTTPClient, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("judge endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse judge endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("judge-http")
	}
	return &HTTPClient{
		client:   client,
		endpoint: parsed,
		apiKey:   strings.TrimSpace(apiKey),
		log:      log,
	}, nil
}

var _ Client = (*HTTPClient)(nil)

// SubmitBatch posts one run per test case and returns the service's tokens.
func (c *HTTPClient) SubmitBatch(ctx context.Context, language, source string, cases []domain.TestCase) ([]string, error) {
	type item struct {
		Language       string `json:"language"`
		SourceCode     string `json:"source_code"`
		Stdin          string `json:"stdin"`
		ExpectedOutput string `json:"expected_output"`
		TimeLimitMS    int64  `json:"time_limit_ms,omitempty"`
		MemoryLimitKB  int64  `json:"memory_limit_kb,omitempty"`
	}
	payload := struct {
		Submissions []item `json:"submissions"`
	}{}
	for _, tc := range cases {
		payload.Submissions = append(payload.Submissions, item{
			Language:       language,
			SourceCode:     source,
			Stdin:          tc.Stdin,
			ExpectedOutput: tc.ExpectedOutput,
			TimeLimitMS:    tc.TimeLimitMS,
			MemoryLimitKB:  tc.MemoryLimitKB,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	raw, err := c.do(ctx, http.MethodPost, c.endpoint.String(), body)
	if err != nil {
		return nil, err
	}

	tokens := make([]string, 0, len(cases))
	for _, t := range gjson.GetBytes(raw, "submissions.#.token").Array() {
		tokens = append(tokens, t.String())
	}
	if len(tokens) == 0 {
		// Some deployments return a bare array.
		for _, t := range gjson.GetBytes(raw, "#.token").Array() {
			tokens = append(tokens, t.String())
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("judge response carried no tokens")
	}
	return tokens, nil
}

// Poll fetches the state of every token in one request.
func (c *HTTPClient) Poll(ctx context.Context, tokens []string) ([]RawResult, error) {
	pollURL := *c.endpoint
	q := pollURL.Query()
	q.Set("tokens", strings.Join(tokens, ","))
	pollURL.RawQuery = q.Encode()

	raw, err := c.do(ctx, http.MethodGet, pollURL.String(), nil)
	if err != nil {
		return nil, err
	}

	items := gjson.GetBytes(raw, "submissions")
	if !items.Exists() {
		items = gjson.ParseBytes(raw)
	}

	results := make([]RawResult, 0, len(tokens))
	items.ForEach(func(_, item gjson.Result) bool {
		statusID := int(item.Get("status.id").Int())
		results = append(results, RawResult{
			Token:       item.Get("token").String(),
			Done:        statusID != rawStatusQueued && statusID != rawStatusProcessing,
			StatusCode:  statusID,
			Description: item.Get("status.description").String(),
			Stdout:      item.Get("stdout").String(),
			WallTimeMS:  int64(item.Get("time").Float() * 1000),
			MemoryKB:    item.Get("memory").Int(),
		})
		return true
	})
	return results, nil
}

func (c *HTTPClient) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build judge request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("judge request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("judge status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
