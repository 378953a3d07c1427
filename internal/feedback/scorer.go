package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SelfScore/Self-Score-sub000/internal/llm"
	"github.com/SelfScore/Self-Score-sub000/internal/prompts"
	"github.com/SelfScore/Self-Score-sub000/internal/retry"
	"github.com/SelfScore/Self-Score-sub000/internal/schemas"
	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// DefaultCategories are the scored dimensions used when none are configured.
var DefaultCategories = []string{
	"Self-awareness",
	"Clarity of expression",
	"Depth of reflection",
	"Growth mindset",
}

// longTranscriptTurns switches scoring to the advanced model tier.
const longTranscriptTurns = 60

// LLMScorer scores interviews with a language model.
type LLMScorer struct {
	client     llm.Client
	categories []string
}

// NewLLMScorer creates a scorer. Empty categories fall back to DefaultCategories.
func NewLLMScorer(client llm.Client, categories []string) *LLMScorer {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return &LLMScorer{client: client, categories: categories}
}

type scoredResponse struct {
	TotalScore          float64               `json:"total_score"`
	CategoryScores      []types.CategoryScore `json:"category_scores"`
	Strengths           []string              `json:"strengths"`
	AreasForImprovement []string              `json:"areas_for_improvement"`
	Recommendations     []string              `json:"recommendations"`
	FinalAssessment     string                `json:"final_assessment"`
}

// Score implements Scorer. Malformed model output is retryable; a missing prompt is not.
func (s *LLMScorer) Score(ctx context.Context, iv *types.Interview) (*types.Feedback, error) {
	prompt, err := prompts.Render("feedback.json", "interview-feedback", map[string]string{
		"Level":      fmt.Sprintf("%d", iv.Level),
		"Mode":       strings.ToLower(string(iv.Mode)),
		"Categories": strings.Join(s.categories, ", "),
		"Material":   Material(iv),
	})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to build feedback prompt: %w", err))
	}

	tier := llm.TierStandard
	if len(iv.Transcript) > longTranscriptTurns {
		tier = llm.TierAdvanced
	}

	raw, err := s.client.GenerateJSON(ctx, prompt, tier)
	if err != nil {
		return nil, err
	}
	if err := schemas.Validate(schemas.Feedback, []byte(raw)); err != nil {
		return nil, err
	}

	var resp scoredResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode feedback: %w", err)
	}
	return &types.Feedback{
		TotalScore:          resp.TotalScore,
		CategoryScores:      resp.CategoryScores,
		Strengths:           nonNil(resp.Strengths),
		AreasForImprovement: nonNil(resp.AreasForImprovement),
		Recommendations:     nonNil(resp.Recommendations),
		FinalAssessment:     resp.FinalAssessment,
	}, nil
}

// Material renders the interview content the model scores: question/answer
// pairs for text interviews, the dialogue for voice interviews.
func Material(iv *types.Interview) string {
	var sb strings.Builder
	if iv.Mode == types.ModeVoice {
		for _, t := range iv.Transcript {
			speaker := "Interviewer"
			if t.Role == types.RoleUser {
				speaker = "Participant"
			}
			fmt.Fprintf(&sb, "%s: %s\n", speaker, t.Content)
		}
		return sb.String()
	}

	answers := make(map[string]string, len(iv.Answers))
	for _, a := range iv.Answers {
		answers[a.QuestionID] = a.AnswerText
	}
	placeholder, err := prompts.Get("feedback.json", "unanswered-placeholder")
	if err != nil {
		placeholder = "(no answer given)"
	}
	for i, q := range iv.Questions {
		answer, ok := answers[q.QuestionID]
		if !ok || strings.TrimSpace(answer) == "" {
			answer = placeholder
		}
		fmt.Fprintf(&sb, "Q%d. %s\nA: %s\n\n", i+1, q.QuestionText, answer)
	}
	return sb.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
