package server

import (
	"net/http"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// handleStartInterview starts or resumes the caller's interview for a level.
func (s *Server) handleStartInterview(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req types.StartInterviewRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	res, err := s.interviews.StartOrResume(r.Context(), id, req.Level, req.Mode)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	s.jsonResponse(w, status, res)
}

func (s *Server) handleGetInterview(w http.ResponseWriter, r *http.Request) {
	id, interviewID, ok := s.caller(w, r)
	if !ok {
		return
	}
	iv, err := s.interviews.GetInterview(r.Context(), id, interviewID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"interview": iv,
		"progress":  iv.Progress(),
	})
}

// handleSubmitAnswer records or revises one text answer.
func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	id, interviewID, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req types.SubmitAnswerRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	progress, err := s.interviews.RecordAnswer(r.Context(), id, interviewID, req.QuestionID, req.AnswerText)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"progress":    progress,
		"is_complete": progress.IsComplete,
	})
}

// handleAppendTranscript appends one voice turn.
func (s *Server) handleAppendTranscript(w http.ResponseWriter, r *http.Request) {
	id, interviewID, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req types.AppendTranscriptRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	turn := types.TranscriptTurn{Role: req.Role, Content: req.Content, QuestionID: req.QuestionID}
	if err := s.interviews.AppendTranscript(r.Context(), id, interviewID, turn); err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

// handleCompleteInterview finalizes an interview and reports its feedback id. When
// feedback generation fails the interview stays COMPLETED and the error is reported
// alongside it so the client can retry feedback later.
func (s *Server) handleCompleteInterview(w http.ResponseWriter, r *http.Request) {
	id, interviewID, ok := s.caller(w, r)
	if !ok {
		return
	}

	res, err := s.interviews.Finalize(r.Context(), id, interviewID)
	if err != nil {
		if res == nil {
			s.serviceError(w, r, err)
			return
		}
		s.jsonResponse(w, HTTPStatus(err), map[string]interface{}{
			"error":       "feedback generation failed",
			"code":        errorCode(err),
			"interview":   res.Interview,
			"feedback_id": nil,
		})
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleAbandonInterview(w http.ResponseWriter, r *http.Request) {
	id, interviewID, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req types.AbandonInterviewRequest
	if r.ContentLength != 0 && !s.decodeRequest(w, r, &req) {
		return
	}

	iv, err := s.interviews.Abandon(r.Context(), id, interviewID, req.Reason)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"interview": iv})
}

func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	id, interviewID, ok := s.caller(w, r)
	if !ok {
		return
	}
	fb, err := s.interviews.GetFeedback(r.Context(), id, interviewID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, fb)
}

// handleRetryFeedback regenerates missing feedback for a completed interview.
func (s *Server) handleRetryFeedback(w http.ResponseWriter, r *http.Request) {
	id, interviewID, ok := s.caller(w, r)
	if !ok {
		return
	}
	fb, err := s.interviews.RetryFeedback(r.Context(), id, interviewID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, fb)
}
