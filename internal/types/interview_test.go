package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInterview(n int) *Interview {
	iv := &Interview{ID: uuid.New(), UserID: uuid.New(), Level: 2, Mode: ModeText, Status: StatusInProgress}
	for i := 1; i <= n; i++ {
		iv.Questions = append(iv.Questions, Question{QuestionID: string(rune('a' + i - 1)), QuestionText: "q", Order: i})
	}
	return iv
}

func TestInterview_Progress(t *testing.T) {
	iv := sampleInterview(4)
	assert.Equal(t, Progress{Answered: 0, Total: 4}, iv.Progress())

	iv.UpsertAnswer(Answer{QuestionID: "a", AnswerText: "one"})
	iv.UpsertAnswer(Answer{QuestionID: "c", AnswerText: "three"})
	p := iv.Progress()
	assert.Equal(t, 2, p.Answered)
	assert.InDelta(t, 0.5, p.Fraction, 1e-9)
	assert.False(t, p.IsComplete)

	iv.UpsertAnswer(Answer{QuestionID: "b", AnswerText: "two"})
	iv.UpsertAnswer(Answer{QuestionID: "d", AnswerText: "four"})
	assert.True(t, iv.Progress().IsComplete)
}

func TestInterview_UpsertAnswerReplaces(t *testing.T) {
	iv := sampleInterview(3)
	iv.UpsertAnswer(Answer{QuestionID: "b", AnswerText: "first"})
	iv.UpsertAnswer(Answer{QuestionID: "a", AnswerText: "x"})
	iv.UpsertAnswer(Answer{QuestionID: "b", AnswerText: "revised"})

	require.Len(t, iv.Answers, 2)
	assert.Equal(t, "b", iv.Answers[0].QuestionID, "revision keeps insertion position")
	assert.Equal(t, "revised", iv.Answers[0].AnswerText)
	assert.Equal(t, 2, iv.Progress().Answered)
}

func TestInterview_ProgressIgnoresForeignAnswers(t *testing.T) {
	iv := sampleInterview(2)
	iv.Answers = append(iv.Answers, Answer{QuestionID: "zz"})
	assert.Equal(t, 0, iv.Progress().Answered)
}

func TestInterview_CloneIsDeep(t *testing.T) {
	iv := sampleInterview(1)
	q := "a"
	now := time.Now()
	iv.Transcript = []TranscriptTurn{{Role: RoleUser, Content: "hi", QuestionID: &q}}
	iv.CompletedAt = &now

	c := iv.Clone()
	*c.Transcript[0].QuestionID = "changed"
	c.Questions[0].QuestionText = "changed"

	assert.Equal(t, "a", *iv.Transcript[0].QuestionID)
	assert.Equal(t, "q", iv.Questions[0].QuestionText)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusAbandoned.Terminal())
}

func TestIdentity_CanAccess(t *testing.T) {
	owner := uuid.New()
	assert.True(t, Identity{UserID: owner}.CanAccess(owner))
	assert.False(t, Identity{UserID: uuid.New()}.CanAccess(owner))
	assert.True(t, Identity{UserID: uuid.New(), Admin: true}.CanAccess(owner))
	assert.False(t, Identity{Admin: true}.CanAccess(owner))
}

func TestReviewTotals(t *testing.T) {
	five, three := 5.0, 3.0
	qrs := []QuestionReview{{QuestionID: "a", Score: &five}, {QuestionID: "b"}, {QuestionID: "c", Score: &three}}
	assert.Equal(t, 8.0, TotalScore(qrs))
	assert.Equal(t, 2, ScoredCount(qrs))
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     interface{ Validate() error }
		wantErr bool
	}{
		{"valid start", &StartInterviewRequest{Level: 1, Mode: ModeVoice}, false},
		{"bad mode", &StartInterviewRequest{Level: 1, Mode: "VIDEO"}, true},
		{"missing level", &StartInterviewRequest{Mode: ModeText}, true},
		{"answer requires question", &SubmitAnswerRequest{AnswerText: "x"}, true},
		{"transcript allows empty content", &AppendTranscriptRequest{Role: RoleAssistant}, false},
		{"transcript bad role", &AppendTranscriptRequest{Role: "system"}, true},
		{"end reason", &EndVoiceSessionRequest{Reason: "paused"}, true},
		{"negative score", &ReviewRequest{QuestionReviews: []QuestionReviewInput{{QuestionID: "a", Score: func() *float64 { v := -1.0; return &v }()}}}, true},
		{"unscored question ok", &ReviewRequest{QuestionReviews: []QuestionReviewInput{{QuestionID: "a"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
