package oracle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/uiwatch/uiwatch/pkg/models"
)

const (
	defaultModel      = "gpt-4o"
	responseMaxTokens = 300
)

// Client implements Classifier on the OpenAI chat completions API using
// vision input and JSON-object response formatting.
type Client struct {
	api   openai.Client
	model string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithModel overrides the default vision model.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// NewClient creates an oracle client. If apiKey is empty it falls back to
// the OPENAI_API_KEY environment variable; baseURL may be empty for the
// public API.
func NewClient(apiKey, baseURL string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via config or OPENAI_API_KEY)")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}

	c := &Client{
		api:   openai.NewClient(reqOpts...),
		model: defaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify sends the screenshot and rubric to the model and parses the JSON
// verdict. Any transport or parse failure surfaces as ErrOracleUnavailable.
func (c *Client) Classify(ctx context.Context, image []byte, rubric string) (Classification, error) {
	prompt := rubric + "\n\n" + `Return JSON:
{
  "label": "<one of the labels defined above>",
  "confidence": 0-100,
  "reasoning": "brief explanation of what you see"
}`

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(c.model),
		MaxTokens: openai.Int(responseMaxTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
	})
	if err != nil {
		return Classification{}, fmt.Errorf("%w: %v", models.ErrOracleUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return Classification{}, fmt.Errorf("%w: empty response", models.ErrOracleUnavailable)
	}

	return parseClassification(resp.Choices[0].Message.Content)
}

// parseClassification decodes the model's JSON verdict. Confidence may come
// back as a number or a numeric string depending on the model's mood.
func parseClassification(content string) (Classification, error) {
	var raw struct {
		Label      string          `json:"label"`
		Confidence json.RawMessage `json:"confidence"`
		Reasoning  string          `json:"reasoning"`
	}

	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Classification{}, fmt.Errorf("%w: malformed verdict %q: %v", models.ErrOracleUnavailable, content, err)
	}
	if raw.Label == "" {
		return Classification{}, fmt.Errorf("%w: verdict missing label: %q", models.ErrOracleUnavailable, content)
	}

	confidence := 0
	if conf := strings.Trim(string(raw.Confidence), `"`); conf != "" && conf != "null" {
		if f, err := strconv.ParseFloat(conf, 64); err == nil {
			confidence = int(f)
		}
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	return Classification{
		Label:      strings.TrimSpace(raw.Label),
		Confidence: confidence,
		Reasoning:  raw.Reasoning,
	}, nil
}
