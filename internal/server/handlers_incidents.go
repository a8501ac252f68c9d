package server

import (
	"net/http"

	"firewatch/internal/dispatch"
	"firewatch/internal/realtime"
	"firewatch/internal/store"

	"github.com/google/uuid"
)

// actorFromRequest extracts the authenticated principal for audit entries.
func actorFromRequest(r *http.Request) (*UserClaims, *string, error) {
	claims, ok := GetUserFromContext(r.Context())
	if !ok {
		return nil, nil, dispatch.Unauthorized("missing authentication context")
	}
	actor := claims.PreferredUsername
	if actor == "" {
		actor = claims.Subject
	}
	return claims, &actor, nil
}

// stationScope returns the station a dispatcher is bound to, or nil for
// operators who see everything.
func stationScope(claims *UserClaims) (*uuid.UUID, error) {
	if claims.Role() != realtime.RoleStationDispatcher {
		return nil, nil
	}
	identity, err := claims.Identity()
	if err != nil {
		return nil, dispatch.Unauthorized("invalid identity claims")
	}
	if identity.StationID == nil {
		return nil, dispatch.Unauthorized("dispatcher token has no station binding")
	}
	return identity.StationID, nil
}

// requireStationAccess rejects dispatchers acting on another station's
// incident. Operators pass unconditionally.
func requireStationAccess(claims *UserClaims, inc store.Incident) error {
	scope, err := stationScope(claims)
	if err != nil {
		return err
	}
	if scope != nil && *scope != inc.StationID {
		return dispatch.Unauthorized("incident belongs to another station")
	}
	return nil
}

// handleCreateIncident godoc
// @Title Report fire incident
// @Description Registers a new fire, classifies its severity, assigns the nearest station and allocates vehicles.
// @Resource Incidents
// @Accept json
// @Produce json
// @Param request body CreateIncidentRequest true "Incident payload"
// @Success 201 {object} CreateIncidentResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Route /v1/incidents [post]
func (s *Server) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	claims, actor, err := actorFromRequest(r)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	var req CreateIncidentRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeDispatchError(w, err)
		return
	}

	reporterID, err := uuid.Parse(claims.Subject)
	if err != nil {
		s.writeDispatchError(w, dispatch.Unauthorized("invalid subject claim"))
		return
	}

	params := dispatch.CreateParams{
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Address:     req.Address,
		Description: req.Description,
		TierID:      req.LevelID,
		StationID:   req.StationID,
		AssigneeID:  req.AssigneeID,
		ReporterID:  reporterID,
		Actor:       actor,
	}
	if req.Status != nil {
		status := store.IncidentStatus(*req.Status)
		params.Status = &status
	}

	inc, vehicles, err := s.engine.Create(r.Context(), params)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, CreateIncidentResponse{
		Incident: toIncidentResponse(inc),
		Vehicles: toVehicleResponses(vehicles),
	})
}

// handleListIncidents godoc
// @Title List incidents
// @Description Lists incidents newest-first. Station dispatchers only see their own station's incidents.
// @Resource Incidents
// @Produce json
// @Param station_id query string false "Filter by station (operators only)"
// @Param limit query int false "Page size (max 200)"
// @Param offset query int false "Page offset"
// @Success 200 {array} IncidentResponse
// @Route /v1/incidents [get]
func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	claims, _, err := actorFromRequest(r)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	scope, err := stationScope(claims)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	if scope == nil {
		if raw := r.URL.Query().Get("station_id"); raw != "" {
			stationID, err := uuid.Parse(raw)
			if err != nil {
				s.writeDispatchError(w, dispatch.InvalidRequest("invalid station_id"))
				return
			}
			scope = &stationID
		}
	}

	limit, offset := paginate(r)
	incidents, err := s.engine.List(r.Context(), scope, int32(limit), int32(offset))
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toIncidentResponses(incidents))
}

// handleGetIncident godoc
// @Title Get incident
// @Resource Incidents
// @Produce json
// @Param incidentID path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 404 {object} ErrorResponse
// @Route /v1/incidents/{incidentID} [get]
func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "incidentID")
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	inc, err := s.engine.Get(r.Context(), id)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toIncidentResponse(inc))
}

// handleUpdateIncident godoc
// @Title Update incident
// @Description Applies a partial update. Status changes go through the transition guard.
// @Resource Incidents
// @Accept json
// @Produce json
// @Param incidentID path string true "Incident ID"
// @Param request body UpdateIncidentRequest true "Fields to change"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Route /v1/incidents/{incidentID} [patch]
func (s *Server) handleUpdateIncident(w http.ResponseWriter, r *http.Request) {
	_, actor, err := actorFromRequest(r)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	id, err := parseUUIDParam(r, "incidentID")
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	var req UpdateIncidentRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeDispatchError(w, err)
		return
	}

	params := dispatch.UpdateParams{
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Address:     req.Address,
		Description: req.Description,
		TierID:      req.LevelID,
		StationID:   req.StationID,
		AssigneeID:  req.AssigneeID,
		Actor:       actor,
	}
	if req.Status != nil {
		status := store.IncidentStatus(*req.Status)
		params.Status = &status
	}

	inc, err := s.engine.Update(r.Context(), id, params)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toIncidentResponse(inc))
}

// handleDeleteIncident godoc
// @Title Delete incident
// @Description Releases allocated vehicles, removes the incident and broadcasts a terminal update.
// @Resource Incidents
// @Param incidentID path string true "Incident ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Route /v1/incidents/{incidentID} [delete]
func (s *Server) handleDeleteIncident(w http.ResponseWriter, r *http.Request) {
	_, actor, err := actorFromRequest(r)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	id, err := parseUUIDParam(r, "incidentID")
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	if err := s.engine.Delete(r.Context(), id, actor); err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

// handleSetIncidentStatus godoc
// @Title Change incident status
// @Description Moves the incident through its lifecycle. Resolving or cancelling releases its vehicles.
// @Resource Incidents
// @Accept json
// @Produce json
// @Param incidentID path string true "Incident ID"
// @Param request body SetStatusRequest true "Target status"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Route /v1/incidents/{incidentID}/status [patch]
func (s *Server) handleSetIncidentStatus(w http.ResponseWriter, r *http.Request) {
	claims, actor, err := actorFromRequest(r)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	id, err := parseUUIDParam(r, "incidentID")
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	var req SetStatusRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeDispatchError(w, err)
		return
	}

	inc, err := s.engine.Get(r.Context(), id)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	if err := requireStationAccess(claims, inc); err != nil {
		s.writeDispatchError(w, err)
		return
	}

	inc, err = s.engine.SetStatus(r.Context(), id, store.IncidentStatus(req.Status), actor)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toIncidentResponse(inc))
}

// handleChangeIncidentLevel godoc
// @Title Change severity level
// @Description Re-classifies the incident onto another severity level, recording the old and new names.
// @Resource Incidents
// @Accept json
// @Produce json
// @Param incidentID path string true "Incident ID"
// @Param request body ChangeLevelRequest true "New level and optional reason"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Route /v1/incidents/{incidentID}/level [patch]
func (s *Server) handleChangeIncidentLevel(w http.ResponseWriter, r *http.Request) {
	_, actor, err := actorFromRequest(r)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	id, err := parseUUIDParam(r, "incidentID")
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	var req ChangeLevelRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeDispatchError(w, err)
		return
	}

	inc, err := s.engine.ChangeLevel(r.Context(), id, req.LevelID, req.Reason, actor)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toIncidentResponse(inc))
}

// handleListIncidentVehicles godoc
// @Title List allocated vehicles
// @Resource Incidents
// @Produce json
// @Param incidentID path string true "Incident ID"
// @Success 200 {array} VehicleResponse
// @Route /v1/incidents/{incidentID}/vehicles [get]
func (s *Server) handleListIncidentVehicles(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "incidentID")
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	if _, err := s.engine.Get(r.Context(), id); err != nil {
		s.writeDispatchError(w, err)
		return
	}
	vehicles, err := s.engine.Vehicles(r.Context(), id)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toVehicleResponses(vehicles))
}

// handleIncidentHistory godoc
// @Title Incident history
// @Description Returns the incident's audit trail, newest first.
// @Resource Incidents
// @Produce json
// @Param incidentID path string true "Incident ID"
// @Success 200 {array} ActivityResponse
// @Route /v1/incidents/{incidentID}/history [get]
func (s *Server) handleIncidentHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "incidentID")
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	if _, err := s.engine.Get(r.Context(), id); err != nil {
		s.writeDispatchError(w, err)
		return
	}
	limit, _ := paginate(r)
	entries, err := s.engine.History(r.Context(), id, int32(limit))
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toActivityResponses(entries))
}
