package review

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// LogNotifier records submissions in the service log. It stands in for the
// external notification channel.
type LogNotifier struct{}

// ReviewSubmitted implements Notifier.
func (LogNotifier) ReviewSubmitted(_ context.Context, r *types.Review) error {
	log.Info().Str("review_id", r.ID.String()).Str("interview_id", r.InterviewID.String()).
		Str("user_id", r.UserID.String()).Float64("total_score", r.TotalScore).
		Msg("review submitted, user notified")
	return nil
}
