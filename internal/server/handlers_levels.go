package server

import (
	"net/http"
)

// handleListLevels godoc
// @Title List severity levels
// @Description Returns every severity level with its ordered vehicle requirement list, lowest ordinal first.
// @Resource Levels
// @Produce json
// @Success 200 {array} LevelResponse
// @Route /v1/levels [get]
func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	tiers, err := s.db.ListTiers(r.Context())
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	out := make([]LevelResponse, 0, len(tiers))
	for _, tier := range tiers {
		reqs, err := s.db.TierRequirements(r.Context(), tier.ID)
		if err != nil {
			s.writeDispatchError(w, err)
			return
		}
		out = append(out, toLevelResponse(tier, reqs))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleDeleteLevel godoc
// @Title Delete severity level
// @Description Removes a severity level unless an open incident still references it.
// @Resource Levels
// @Param levelID path string true "Level ID"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Route /v1/levels/{levelID} [delete]
func (s *Server) handleDeleteLevel(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "levelID")
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	if err := s.engine.DeleteTier(r.Context(), id); err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}
