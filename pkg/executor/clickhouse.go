package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ClickHouseExecutor executes queries against ClickHouse over its HTTP
// interface.
type ClickHouseExecutor struct {
	url      string
	username string
	password string
}

// NewClickHouseExecutor creates an HTTP-based ClickHouse executor.
func NewClickHouseExecutor(url, username, password string) *ClickHouseExecutor {
	return &ClickHouseExecutor{url: url, username: username, password: password}
}

// Execute runs sql with FORMAT JSON appended and parses the response.
func (e *ClickHouseExecutor) Execute(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSuffix(strings.TrimSpace(query), ";")
	body := query + " FORMAT JSON"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, strings.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	if e.username != "" {
		req.SetBasicAuth(e.username, e.password)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errMsg := strings.TrimSpace(string(data))
		if len(errMsg) > 500 {
			errMsg = errMsg[:500] + "..."
		}
		return Result{}, fmt.Errorf("clickhouse error: %s", errMsg)
	}

	var chResp struct {
		Meta []struct {
			Name string `json:"name"`
		} `json:"meta"`
		Data []map[string]any `json:"data"`
		Rows int              `json:"rows"`
	}
	if err := json.Unmarshal(data, &chResp); err != nil {
		return Result{}, fmt.Errorf("failed to parse response: %w", err)
	}

	columns := make([]string, 0, len(chResp.Meta))
	for _, m := range chResp.Meta {
		columns = append(columns, m.Name)
	}

	return Result{
		SQL:       query,
		Columns:   columns,
		Rows:      chResp.Data,
		TotalRows: len(chResp.Data),
	}, nil
}
