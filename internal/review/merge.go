package review

import (
	"strings"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// BuildQuestionReviews returns one entry per snapshot question in order, carrying
// the participant's answer and any score or remark from existing.
func BuildQuestionReviews(iv *types.Interview, existing *types.Review) []types.QuestionReview {
	prior := make(map[string]types.QuestionReview)
	if existing != nil {
		for _, qr := range existing.QuestionReviews {
			prior[qr.QuestionID] = qr
		}
	}

	answers := make(map[string]string, len(iv.Answers))
	for _, a := range iv.Answers {
		answers[a.QuestionID] = a.AnswerText
	}
	spoken := make(map[string][]string)
	for _, t := range iv.Transcript {
		if t.Role == types.RoleUser && t.QuestionID != nil {
			spoken[*t.QuestionID] = append(spoken[*t.QuestionID], t.Content)
		}
	}

	out := make([]types.QuestionReview, 0, len(iv.Questions))
	for _, q := range iv.Questions {
		text, hasText := answers[q.QuestionID]
		turns := spoken[q.QuestionID]

		qr := types.QuestionReview{
			QuestionID:   q.QuestionID,
			QuestionText: q.QuestionText,
			AnswerMode:   types.AnswerMode(iv.Mode),
		}
		switch {
		case hasText && len(turns) > 0:
			qr.AnswerMode = types.AnswerModeMixed
			qr.UserAnswer = text + "\n" + strings.Join(turns, " ")
		case hasText:
			qr.AnswerMode = types.AnswerModeText
			qr.UserAnswer = text
		case len(turns) > 0:
			qr.AnswerMode = types.AnswerModeVoice
			qr.UserAnswer = strings.Join(turns, " ")
		}
		if p, ok := prior[q.QuestionID]; ok {
			qr.Score = p.Score
			qr.Remark = p.Remark
		}
		out = append(out, qr)
	}
	return out
}

// Merge applies inputs on top of base. Questions absent from inputs keep their
// current score and remark; the last input for a question wins.
func Merge(base []types.QuestionReview, inputs []types.QuestionReviewInput) []types.QuestionReview {
	index := make(map[string]int, len(base))
	for i, qr := range base {
		index[qr.QuestionID] = i
	}
	for _, in := range inputs {
		i, ok := index[in.QuestionID]
		if !ok {
			continue
		}
		if in.Score != nil {
			s := *in.Score
			base[i].Score = &s
		} else {
			base[i].Score = nil
		}
		base[i].Remark = in.Remark
	}
	return base
}
