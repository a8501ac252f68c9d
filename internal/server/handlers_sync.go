package server

import (
	"net/http"
	"time"
)

// handleSync godoc
// @Title Sync snapshot
// @Description Returns a full state snapshot so clients can rebuild local caches after a websocket gap. Station dispatchers receive only their station's incidents.
// @Resource Sync
// @Produce json
// @Success 200 {object} SyncResponse
// @Route /v1/sync [get]
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
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

	ctx := r.Context()
	incidents, err := s.engine.List(ctx, scope, 200, 0)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	stations, err := s.db.ListStations(ctx)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	vehicles, err := s.db.ListVehicles(ctx)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	tiers, err := s.db.ListTiers(ctx)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	levels := make([]LevelResponse, 0, len(tiers))
	for _, tier := range tiers {
		reqs, err := s.db.TierRequirements(ctx, tier.ID)
		if err != nil {
			s.writeDispatchError(w, err)
			return
		}
		levels = append(levels, toLevelResponse(tier, reqs))
	}

	activity, err := s.db.ListRecentActivity(ctx, 50)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, SyncResponse{
		Incidents: toIncidentResponses(incidents),
		Stations:  toStationResponses(stations),
		Levels:    levels,
		Vehicles:  toVehicleResponses(vehicles),
		Activity:  toActivityResponses(activity),
		ServerTS:  time.Now().UTC(),
	})
}
