package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"firewatch/internal/dispatch"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeDispatchError maps the dispatch error taxonomy onto HTTP statuses.
// Anything outside the taxonomy is an internal error and is not echoed
// back to the client.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	switch dispatch.KindOf(err) {
	case dispatch.KindNotFound:
		s.writeError(w, http.StatusNotFound, err.Error())
	case dispatch.KindInvalidRequest:
		s.writeError(w, http.StatusBadRequest, err.Error())
	case dispatch.KindUnauthorized:
		s.writeError(w, http.StatusForbidden, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeAndValidate decodes the request body into dst and runs struct
// validation. Unknown fields are rejected.
func (s *Server) decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dispatch.InvalidRequest("invalid request body: " + err.Error())
	}
	if err := s.validate.Struct(dst); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return dispatch.InvalidRequest("validation failed on field " + verrs[0].Field())
		}
		return dispatch.InvalidRequest("validation failed")
	}
	return nil
}

// parseUUIDParam extracts and parses a UUID URL parameter.
func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dispatch.InvalidRequest("invalid " + name)
	}
	return id, nil
}

// paginate reads limit/offset query parameters with sane bounds.
func paginate(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
