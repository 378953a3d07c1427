package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// handleListSubmissions pages completed interviews for reviewers.
// Query: page, page_size, search, status (pending|draft|submitted), level (repeatable or comma-separated).
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := types.SubmissionFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Status: types.ReviewFilter(q.Get("status")),
	}
	var err error
	if filter.Page, err = intParam(q.Get("page")); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid page")
		return
	}
	if filter.PageSize, err = intParam(q.Get("page_size")); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid page_size")
		return
	}
	for _, raw := range q["level"] {
		for _, part := range strings.Split(raw, ",") {
			level, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				s.errorResponse(w, http.StatusBadRequest, "invalid level")
				return
			}
			filter.Levels = append(filter.Levels, level)
		}
	}

	page, err := s.reviews.ListSubmissions(r.Context(), id, filter)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, page)
}

func (s *Server) handleLoadSubmission(w http.ResponseWriter, r *http.Request) {
	id, interviewID, ok := s.caller(w, r)
	if !ok {
		return
	}
	detail, err := s.reviews.LoadSubmission(r.Context(), id, interviewID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, detail)
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	s.handleReviewWrite(w, r, false)
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	s.handleReviewWrite(w, r, true)
}

func (s *Server) handleReviewWrite(w http.ResponseWriter, r *http.Request, submit bool) {
	id, interviewID, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req types.ReviewRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	save := s.reviews.SaveDraft
	if submit {
		save = s.reviews.SubmitReview
	}
	rv, err := save(r.Context(), id, interviewID, req.QuestionReviews)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"review_id":   rv.ID,
		"total_score": rv.TotalScore,
		"status":      rv.Status,
		"review":      rv,
	})
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
