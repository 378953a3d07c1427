package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/SelfScore/Self-Score-sub000/internal/server/middleware"
	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// maxBodyBytes bounds request bodies. Transcript turns are the largest payloads.
const maxBodyBytes = 1 << 20

// validatable is implemented by request DTOs carrying validator tags.
type validatable interface {
	Validate() error
}

// decodeRequest reads a JSON body into dst and validates it. On failure it writes
// the error response and returns false.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst validatable) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			s.errorResponse(w, http.StatusBadRequest, "request body is required")
			return false
		}
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	if err := dst.Validate(); err != nil {
		s.serviceError(w, r, err)
		return false
	}
	return true
}

// pathID parses the {id} path value.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// identity returns the authenticated caller.
func (s *Server) identity(w http.ResponseWriter, r *http.Request) (types.Identity, bool) {
	id, err := middleware.GetIdentity(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return types.Identity{}, false
	}
	return id, true
}

// caller combines identity and path id extraction, the common prelude of
// per-record handlers.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (types.Identity, uuid.UUID, bool) {
	id, ok := s.identity(w, r)
	if !ok {
		return types.Identity{}, uuid.Nil, false
	}
	recordID, ok := s.pathID(w, r)
	if !ok {
		return types.Identity{}, uuid.Nil, false
	}
	return id, recordID, true
}
