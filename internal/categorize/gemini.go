package categorize

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/logger"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// TextGenerator produces a model response for a prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type genaiGenerator struct {
	client *genai.Client
	model  string
}

func (g *genaiGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GenerateText: generate content: %w", err)
	}
	return resp.Text(), nil
}

// Gemini asks a model to pick one of the known categories.
type Gemini struct {
	gen TextGenerator
}

// NewGemini creates a Gemini categorizer. Credentials come from the
// environment the genai client reads.
func NewGemini(ctx context.Context, model string) (*Gemini, error) {
	if model == "" {
		model = DefaultModelName
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGemini: create genai client: %w", err)
	}
	return &Gemini{gen: &genaiGenerator{client: client, model: model}}, nil
}

// NewGeminiWithGenerator creates a Gemini categorizer over gen.
func NewGeminiWithGenerator(gen TextGenerator) *Gemini {
	return &Gemini{gen: gen}
}

func buildPrompt(d domain.Draft) string {
	names := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		names[i] = string(c)
	}

	var b strings.Builder
	b.WriteString("You classify Indian bank transactions.\n\n")
	b.WriteString("Use ONLY one of these categories:\n")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString("\n\nTransaction:\n")
	fmt.Fprintf(&b, "- type: %s\n", d.Type)
	fmt.Fprintf(&b, "- amount: %s %s\n", d.Amount.String(), d.Currency)
	fmt.Fprintf(&b, "- narration: %s\n", d.Description)
	fmt.Fprintf(&b, "- labels: %s\n", strings.Join(d.Labels, ", "))
	b.WriteString("\nReturn ONLY the category name, with no other text.\n")
	return b.String()
}

// Categorize implements Categorizer. Model failures and answers outside the
// category set give CategoryOther.
func (g *Gemini) Categorize(ctx context.Context, d domain.Draft) domain.Category {
	log := logger.FromContext(ctx)

	raw, err := g.gen.GenerateText(ctx, buildPrompt(d))
	if err != nil {
		log.Warn().Err(err).Msg("Category model failed, keeping OTHER")
		return domain.CategoryOther
	}

	answer := strings.ToUpper(strings.Trim(strings.TrimSpace(raw), "`\"'. \n"))
	cat, ok := domain.ParseCategory(answer)
	if !ok {
		log.Debug().Str("answer", raw).Msg("Category model answered outside the category set")
	}
	return cat
}
