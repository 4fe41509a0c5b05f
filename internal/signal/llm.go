package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const defaultLLMTimeout = 30 * time.Second

// LLMConfig configures the model-backed signal source. The endpoint must
// speak the OpenAI-compatible chat-completions format (DeepSeek and most
// hosted models do).
type LLMConfig struct {
	Endpoint    string        `json:"endpoint"`
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}

// LLMSource asks a chat model for a directional recommendation and parses
// its JSON reply. Implements Source.
type LLMSource struct {
	config     LLMConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewLLMSource creates a model-backed source.
func NewLLMSource(config LLMConfig, logger zerolog.Logger) *LLMSource {
	if config.Timeout <= 0 {
		config.Timeout = defaultLLMTimeout
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 512
	}
	return &LLMSource{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.With().Str("component", "LLMSource").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const systemPrompt = `You are a crypto futures trading assistant. Reply with a single JSON object:
{"signal": "BUY"|"SELL"|"HOLD", "confidence": "HIGH"|"MEDIUM"|"LOW", "reason": "...", "stop_loss": number, "take_profit": number}
No other text.`

// GetSignal asks the model for a recommendation. Transport and HTTP errors
// are returned to the caller; a malformed model reply is not an error but a
// malformed HOLD signal.
func (s *LLMSource) GetSignal(ctx context.Context, mctx MarketContext) (Signal, error) {
	userPrompt := fmt.Sprintf(
		"Symbol: %s\nPrice: %.6f\nFast trend: %s\nSlow trend: %s\nOverall: %s\nRSI: %.1f\n24h change: %.2f%%\nOpen position: %t\nWhat is your recommendation?",
		mctx.Symbol, mctx.CurrentPrice, mctx.FastTrend, mctx.SlowTrend,
		mctx.OverallTrend, mctx.RSI, mctx.ChangePercent, mctx.HasPosition,
	)

	reqBody, err := json.Marshal(chatRequest{
		Model: s.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
	})
	if err != nil {
		return Signal{}, fmt.Errorf("marshaling signal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return Signal{}, fmt.Errorf("building signal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Signal{}, fmt.Errorf("calling signal source: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Signal{}, fmt.Errorf("reading signal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Signal{}, fmt.Errorf("signal source HTTP %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Signal{}, fmt.Errorf("parsing signal response: %w", err)
	}
	if parsed.Error != nil {
		return Signal{}, fmt.Errorf("signal source error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Signal{}, fmt.Errorf("signal source returned no choices")
	}

	sig := Parse(parsed.Choices[0].Message.Content)
	if sig.Malformed {
		s.logger.Warn().
			Str("symbol", mctx.Symbol).
			Str("rationale", sig.Rationale).
			Msg("Malformed signal payload, treating as HOLD")
	}
	return sig, nil
}
