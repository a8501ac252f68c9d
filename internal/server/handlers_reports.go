package server

import (
	"net/http"

	"firewatch/internal/dispatch"

	"github.com/google/uuid"
)

// handleCreateReport godoc
// @Title File report
// @Description Files an after-action report against an incident and notifies subscribed clients.
// @Resource Reports
// @Accept json
// @Produce json
// @Param incidentID path string true "Incident ID"
// @Param request body CreateReportRequest true "Report body"
// @Success 201 {object} ReportResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Route /v1/incidents/{incidentID}/reports [post]
func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	claims, _, err := actorFromRequest(r)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	incidentID, err := parseUUIDParam(r, "incidentID")
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	var req CreateReportRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeDispatchError(w, err)
		return
	}

	authorID, err := uuid.Parse(claims.Subject)
	if err != nil {
		s.writeDispatchError(w, dispatch.Unauthorized("invalid subject claim"))
		return
	}

	rep, err := s.engine.FileReport(r.Context(), incidentID, authorID, req.Body)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toReportResponse(rep))
}

// handleListReports godoc
// @Title List reports
// @Resource Reports
// @Produce json
// @Param incidentID path string true "Incident ID"
// @Success 200 {array} ReportResponse
// @Failure 404 {object} ErrorResponse
// @Route /v1/incidents/{incidentID}/reports [get]
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	incidentID, err := parseUUIDParam(r, "incidentID")
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	if _, err := s.engine.Get(r.Context(), incidentID); err != nil {
		s.writeDispatchError(w, err)
		return
	}

	reports, err := s.engine.Reports(r.Context(), incidentID)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	out := make([]ReportResponse, 0, len(reports))
	for _, rep := range reports {
		out = append(out, toReportResponse(rep))
	}
	s.writeJSON(w, http.StatusOK, out)
}
