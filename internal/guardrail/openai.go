package guardrail

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// DefaultModerationModel is the moderation endpoint's current model.
const DefaultModerationModel = "omni-moderation-latest"

// OpenAIModerator checks text against the OpenAI moderation endpoint.
type OpenAIModerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIModerator creates a moderator. An empty model selects
// DefaultModerationModel.
func NewOpenAIModerator(apiKey, model string) *OpenAIModerator {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	if model == "" {
		model = DefaultModerationModel
	}
	return &OpenAIModerator{client: &client, model: model}
}

func (m *OpenAIModerator) Moderate(ctx context.Context, text string) (*Result, error) {
	resp, err := m.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
		Model: openai.ModerationModel(m.model),
	})
	if err != nil {
		return nil, fmt.Errorf("moderation call: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("moderation returned no results")
	}

	r := resp.Results[0]
	return &Result{
		Flagged:    r.Flagged,
		Categories: flaggedCategories(r.Categories),
	}, nil
}

// flaggedCategories lists the category names marked true. The category
// struct is round-tripped through JSON so new categories surface
// without a code change.
func flaggedCategories(categories openai.ModerationCategories) []string {
	data, err := json.Marshal(categories)
	if err != nil {
		return nil
	}
	var m map[string]bool
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}

	var flagged []string
	for name, on := range m {
		if on {
			flagged = append(flagged, name)
		}
	}
	sort.Strings(flagged)
	return flagged
}
