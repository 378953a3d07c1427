package feedback

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SelfScore/Self-Score-sub000/internal/llm"
	"github.com/SelfScore/Self-Score-sub000/internal/schemas"
	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

type fakeClient struct {
	response string
	err      error
	prompt   string
	tier     llm.ModelTier
}

func (f *fakeClient) GenerateJSON(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
	f.prompt = prompt
	f.tier = tier
	return f.response, f.err
}

func (f *fakeClient) Close() error { return nil }

const scoredJSON = `{
  "total_score": 64,
  "category_scores": [{"name": "Self-awareness", "score": 70, "comment": "good"}],
  "strengths": ["candid"],
  "areas_for_improvement": ["specifics"],
  "recommendations": [],
  "final_assessment": "Promising."
}`

func textInterview() *types.Interview {
	return &types.Interview{
		ID:    uuid.New(),
		Level: 2,
		Mode:  types.ModeText,
		Questions: []types.Question{
			{QuestionID: "a", QuestionText: "First?", Order: 1},
			{QuestionID: "b", QuestionText: "Second?", Order: 2},
		},
		Answers: []types.Answer{{QuestionID: "a", AnswerText: "Yes."}},
	}
}

func TestLLMScorer_Score(t *testing.T) {
	client := &fakeClient{response: scoredJSON}
	scorer := NewLLMScorer(client, nil)

	fb, err := scorer.Score(context.Background(), textInterview())
	require.NoError(t, err)
	assert.Equal(t, 64.0, fb.TotalScore)
	assert.Equal(t, "Promising.", fb.FinalAssessment)
	assert.NotNil(t, fb.Recommendations)

	assert.Equal(t, llm.TierStandard, client.tier)
	assert.Contains(t, client.prompt, "level 2")
	assert.Contains(t, client.prompt, "Q1. First?\nA: Yes.")
	assert.Contains(t, client.prompt, "Q2. Second?\nA: (no answer given)")
	assert.Contains(t, client.prompt, DefaultCategories[0])
	assert.NotContains(t, client.prompt, "{{.")
}

func TestLLMScorer_RejectsInvalidOutput(t *testing.T) {
	scorer := NewLLMScorer(&fakeClient{response: `{"total_score": 500}`}, nil)
	_, err := scorer.Score(context.Background(), textInterview())
	var ve *schemas.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestLLMScorer_PropagatesClientError(t *testing.T) {
	scorer := NewLLMScorer(&fakeClient{err: errors.New("quota")}, nil)
	_, err := scorer.Score(context.Background(), textInterview())
	assert.ErrorContains(t, err, "quota")
}

func TestMaterial_Voice(t *testing.T) {
	iv := &types.Interview{
		Mode: types.ModeVoice,
		Transcript: []types.TranscriptTurn{
			{Role: types.RoleAssistant, Content: "How are you?"},
			{Role: types.RoleUser, Content: "Fine."},
		},
	}
	assert.Equal(t, "Interviewer: How are you?\nParticipant: Fine.\n", Material(iv))
}

func TestLLMScorer_LongTranscriptUsesAdvancedTier(t *testing.T) {
	iv := &types.Interview{Mode: types.ModeVoice}
	for i := 0; i <= longTranscriptTurns; i++ {
		iv.Transcript = append(iv.Transcript, types.TranscriptTurn{Role: types.RoleUser, Content: "x"})
	}
	client := &fakeClient{response: scoredJSON}
	_, err := NewLLMScorer(client, []string{"Only"}).Score(context.Background(), iv)
	require.NoError(t, err)
	assert.Equal(t, llm.TierAdvanced, client.tier)
	assert.Contains(t, client.prompt, "these categories, in this order: Only.")
}
