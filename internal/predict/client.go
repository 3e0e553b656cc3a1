// Package predict talks to an optional OpenAI-compatible model that
// predicts header rows and column aliases. The predictor is untrusted
// and best-effort: every transport, parse, or schema failure is
// swallowed and reported as "no prediction".
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/table-engine/internal/header"
	"github.com/ignite/table-engine/internal/pkg/logger"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Config holds the predictor settings.
type Config struct {
	Enabled bool
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client issues chat-completion requests for header and alias prediction.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New returns a predictor client, or nil when prediction is disabled or
// unconfigured. The enableOverride, when non-nil, beats the config flag.
func New(cfg Config, enableOverride *bool) *Client {
	enabled := cfg.Enabled
	if enableOverride != nil {
		enabled = *enableOverride
	}
	if !enabled || cfg.APIKey == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// HeaderFunc adapts the client to the header package's predictor hook.
// A nil client yields a nil hook.
func (c *Client) HeaderFunc(ctx context.Context) header.PredictFunc {
	if c == nil {
		return nil
	}
	return func(rows [][]string) *header.Prediction {
		return c.PredictHeader(ctx, rows)
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat map[string]any  `json:"response_format"`
	Messages       []chatMessage   `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// PredictHeader asks the model for the header row and cleaned column
// names. Returns nil on any failure.
func (c *Client) PredictHeader(ctx context.Context, rows [][]string) *header.Prediction {
	messages := []chatMessage{
		{
			Role:    "system",
			Content: "You are a CSV structure recognizer. Reply with JSON only, schema: {header_row:int, columns:list, confidence:number}.",
		},
		{
			Role: "user",
			Content: "Identify the header row index (0-based) and the cleaned column names for the table in the text below." +
				" Respond with JSON only.\n" + formatRowsForPrompt(rows, 25),
		},
	}
	content, err := c.chat(ctx, messages)
	if err != nil {
		logger.Warn("header prediction failed", "error", err)
		return nil
	}

	var payload struct {
		HeaderRow  int      `json:"header_row"`
		Columns    []string `json:"columns"`
		Confidence float64  `json:"confidence"`
	}
	if err := decodeJSONObject(content, &payload); err != nil {
		return nil
	}
	columns := make([]string, 0, len(payload.Columns))
	for _, column := range payload.Columns {
		if trimmed := strings.TrimSpace(column); trimmed != "" {
			columns = append(columns, trimmed)
		}
	}
	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return &header.Prediction{HeaderRow: payload.HeaderRow, Columns: columns, Confidence: confidence}
}

// PredictAliases maps columns plus sample records onto canonical
// aliases. Returns nil on any failure or an empty mapping.
func (c *Client) PredictAliases(ctx context.Context, columns []string, sampleRecords []map[string]string) map[string]string {
	if c == nil {
		return nil
	}
	if len(sampleRecords) > 5 {
		sampleRecords = sampleRecords[:5]
	}
	preview, err := json.Marshal(map[string]any{"columns": columns, "samples": sampleRecords})
	if err != nil {
		return nil
	}
	messages := []chatMessage{
		{
			Role: "system",
			Content: "Map given columns + sample rows to canonical aliases (amount, date, invoice_number, order_id," +
				" customer_email, customer_name, vat, quantity, region, payment_method, status). JSON only.",
		},
		{
			Role: "user",
			Content: `Return {"aliases": {src: alias}, "confidence": number between 0 and 1}. Exclude columns` +
				" you are unsure about.\n" + string(preview),
		},
	}
	content, err := c.chat(ctx, messages)
	if err != nil {
		logger.Warn("alias prediction failed", "error", err)
		return nil
	}

	var payload struct {
		Aliases map[string]string `json:"aliases"`
	}
	if err := decodeJSONObject(content, &payload); err != nil {
		return nil
	}
	result := make(map[string]string, len(payload.Aliases))
	for column, alias := range payload.Aliases {
		column = strings.TrimSpace(column)
		alias = strings.TrimSpace(alias)
		if column != "" && alias != "" {
			result[column] = alias
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func (c *Client) chat(ctx context.Context, messages []chatMessage) (string, error) {
	request := chatRequest{
		Model:          c.cfg.Model,
		Temperature:    0,
		ResponseFormat: map[string]any{"type": "json_object"},
		Messages:       messages,
	}
	jsonBody, err := json.Marshal(request)
	if err != nil {
		return "", err
	}

	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("prediction request failed: status %d", resp.StatusCode)
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("parse prediction response: %w", err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("prediction API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("prediction response has no choices")
	}
	return response.Choices[0].Message.Content, nil
}

// decodeJSONObject parses content as JSON, salvaging the outermost
// object when the model wrapped it in prose.
func decodeJSONObject(content string, target any) error {
	if err := json.Unmarshal([]byte(content), target); err == nil {
		return nil
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return fmt.Errorf("no JSON object in prediction content")
	}
	return json.Unmarshal([]byte(content[start:end+1]), target)
}

func formatRowsForPrompt(rows [][]string, limit int) string {
	if len(rows) > limit {
		rows = rows[:limit]
	}
	var b strings.Builder
	for idx, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = strings.TrimSpace(strings.ReplaceAll(cell, "\n", " "))
		}
		fmt.Fprintf(&b, "Row %d: %s\n", idx, strings.Join(cells, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
