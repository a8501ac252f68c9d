package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"firewatch/internal/geo"
	"firewatch/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Storage is everything the engine needs from the persistence layer.
// *store.Store satisfies it; tests use an in-memory fake.
type Storage interface {
	CreateIncident(ctx context.Context, inc *store.Incident) error
	GetIncident(ctx context.Context, id uuid.UUID) (store.Incident, error)
	UpdateIncident(ctx context.Context, inc *store.Incident) error
	DeleteIncident(ctx context.Context, id uuid.UUID) error
	ListIncidents(ctx context.Context, limit, offset int32) ([]store.Incident, error)
	ListIncidentsByStation(ctx context.Context, stationID uuid.UUID, limit, offset int32) ([]store.Incident, error)

	ListStations(ctx context.Context) ([]store.Station, error)

	ListAvailableVehicles(ctx context.Context, stationID uuid.UUID) ([]store.Vehicle, error)
	ListIncidentVehicles(ctx context.Context, incidentID uuid.UUID) ([]store.Vehicle, error)
	AssignVehicle(ctx context.Context, vehicleID, incidentID uuid.UUID) error
	ReleaseVehicle(ctx context.Context, vehicleID, incidentID uuid.UUID) error

	CreateReport(ctx context.Context, rep *store.Report) error
	ListReportsByIncident(ctx context.Context, incidentID uuid.UUID) ([]store.Report, error)

	RecordActivity(ctx context.Context, entry store.ActivityEntry) error
	SearchActivity(ctx context.Context, marker string, limit int32) ([]store.ActivityEntry, error)
}

// Notifier receives state changes for realtime fan-out. Implementations
// must never block the caller; delivery is best-effort with no
// acknowledgement awaited.
type Notifier interface {
	FireCreated(inc store.Incident, tier store.SeverityTier)
	FireUpdated(inc store.Incident, tier store.SeverityTier)
	FireDeleted(inc store.Incident, tier store.SeverityTier)
	FireAssigned(inc store.Incident, tier store.SeverityTier)
	ReportCreated(rep store.Report)
}

// Engine turns incident mutations into station assignments, vehicle
// allocations and realtime events.
type Engine struct {
	db         Storage
	catalog    *Catalog
	classifier *Classifier
	notifier   Notifier
	log        zerolog.Logger
}

func NewEngine(db Storage, catalog *Catalog, classifier *Classifier, notifier Notifier, log zerolog.Logger) *Engine {
	return &Engine{
		db:         db,
		catalog:    catalog,
		classifier: classifier,
		notifier:   notifier,
		log:        log,
	}
}

// CreateParams carries the create-incident input. ReporterID is required;
// nil optionals fall back per the dispatch rules.
type CreateParams struct {
	Latitude    float64
	Longitude   float64
	Address     *string
	Description *string
	TierID      *uuid.UUID
	Status      *store.IncidentStatus
	StationID   *uuid.UUID
	AssigneeID  *uuid.UUID
	ReporterID  uuid.UUID
	Actor       *string
}

// Create registers a new incident: classifies it when no tier is given,
// ranks stations by distance, allocates vehicles against the tier's
// requirement list and falls back to the second-nearest station when the
// allocation comes up short.
func (e *Engine) Create(ctx context.Context, p CreateParams) (store.Incident, []store.Vehicle, error) {
	var (
		tier store.SeverityTier
		err  error
	)
	if p.TierID != nil {
		tier, err = e.catalog.Tier(ctx, *p.TierID)
	} else {
		address := ""
		if p.Address != nil {
			address = *p.Address
		}
		tier, err = e.classifier.Classify(ctx, p.Latitude, p.Longitude, address)
	}
	if err != nil {
		return store.Incident{}, nil, err
	}

	reqs, err := e.catalog.RequirementsFor(ctx, tier.ID)
	if err != nil {
		return store.Incident{}, nil, err
	}

	stations, err := e.db.ListStations(ctx)
	if err != nil {
		return store.Incident{}, nil, fmt.Errorf("load stations: %w", err)
	}
	if len(stations) == 0 {
		return store.Incident{}, nil, InvalidRequest("no stations configured")
	}

	ranked := RankStationsByDistance(stations, p.Latitude, p.Longitude)

	chosen := ranked[0]
	if p.StationID != nil {
		found := false
		for _, st := range stations {
			if st.ID == *p.StationID {
				chosen, found = st, true
				break
			}
		}
		if !found {
			return store.Incident{}, nil, NotFound("station not found")
		}
	}

	status := store.IncidentStatusPending
	if p.Status != nil {
		status = *p.Status
	}
	assignee := p.ReporterID
	if p.AssigneeID != nil {
		assignee = *p.AssigneeID
	}

	inc := store.Incident{
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		Address:     p.Address,
		Description: p.Description,
		TierID:      tier.ID,
		Status:      status,
		StationID:   chosen.ID,
		ReporterID:  p.ReporterID,
		AssigneeID:  assignee,
	}
	if err := e.db.CreateIncident(ctx, &inc); err != nil {
		return store.Incident{}, nil, fmt.Errorf("persist incident: %w", err)
	}

	allocated, err := e.allocateVehicles(ctx, &inc, chosen.ID, reqs)
	if err != nil {
		return store.Incident{}, nil, err
	}

	// Shortfall fallback: repoint the incident at the second-nearest
	// station. No vehicles are allocated there in this pass.
	if int32(len(allocated)) < totalRequired(reqs) && len(stations) > 1 {
		inc.StationID = ranked[1].ID
		if err := e.db.UpdateIncident(ctx, &inc); err != nil {
			return store.Incident{}, nil, fmt.Errorf("reassign station: %w", err)
		}
		allocationShortfallTotal.WithLabelValues(strconv.Itoa(int(tier.Ordinal))).Inc()
	}

	incidentsCreatedTotal.WithLabelValues(strconv.Itoa(int(tier.Ordinal))).Inc()
	e.audit(ctx, store.ActivityEntry{
		Kind:    "incident_created",
		Actor:   p.Actor,
		Message: fmt.Sprintf("incident created at (%f, %f), tier %s, %d/%d vehicles allocated", p.Latitude, p.Longitude, tier.Name, len(allocated), totalRequired(reqs)),
		Marker:  incidentMarker(inc.ID),
	})

	e.notifier.FireCreated(inc, tier)
	e.notifier.FireAssigned(inc, tier)

	return inc, allocated, nil
}

// allocateVehicles takes, per requirement row in tier order, up to count
// available vehicles of the row's type from the chosen station. First-come
// from the store's return order; no substitution across types.
//
// No transaction serializes the read-available-then-assign sequence, so two
// concurrent creates can race for the same vehicle. This mirrors the
// documented best-effort allocation model.
func (e *Engine) allocateVehicles(ctx context.Context, inc *store.Incident, stationID uuid.UUID, reqs []store.TierRequirement) ([]store.Vehicle, error) {
	available, err := e.db.ListAvailableVehicles(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("load available vehicles: %w", err)
	}

	byType := make(map[store.VehicleType][]store.Vehicle)
	for _, v := range available {
		byType[v.Type] = append(byType[v.Type], v)
	}

	var allocated []store.Vehicle
	for _, req := range reqs {
		pool := byType[req.VehicleType]
		take := int(req.Count)
		if take > len(pool) {
			take = len(pool)
		}
		for _, v := range pool[:take] {
			if err := e.db.AssignVehicle(ctx, v.ID, inc.ID); err != nil {
				return nil, fmt.Errorf("assign vehicle %s: %w", v.ID, err)
			}
			v.Status = store.VehicleStatusOnDuty
			allocated = append(allocated, v)
		}
	}
	return allocated, nil
}

// UpdateParams carries a partial incident update; nil fields are untouched.
type UpdateParams struct {
	Latitude    *float64
	Longitude   *float64
	Address     *string
	Description *string
	TierID      *uuid.UUID
	Status      *store.IncidentStatus
	StationID   *uuid.UUID
	AssigneeID  *uuid.UUID
	Actor       *string
}

// Update applies a partial-field update. A supplied tier must exist; a
// supplied status goes through the transition guard and its release side
// effects.
func (e *Engine) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (store.Incident, error) {
	inc, err := e.get(ctx, id)
	if err != nil {
		return store.Incident{}, err
	}

	tier, err := e.catalog.Tier(ctx, inc.TierID)
	if err != nil {
		return store.Incident{}, err
	}
	if p.TierID != nil && *p.TierID != inc.TierID {
		tier, err = e.catalog.Tier(ctx, *p.TierID)
		if err != nil {
			return store.Incident{}, err
		}
		inc.TierID = tier.ID
	}

	if p.Latitude != nil {
		inc.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		inc.Longitude = *p.Longitude
	}
	if p.Address != nil {
		inc.Address = p.Address
	}
	if p.Description != nil {
		inc.Description = p.Description
	}
	if p.StationID != nil {
		inc.StationID = *p.StationID
	}
	if p.AssigneeID != nil {
		inc.AssigneeID = *p.AssigneeID
	}

	if p.Status != nil && *p.Status != inc.Status {
		if err := e.applyStatus(ctx, &inc, *p.Status, p.Actor); err != nil {
			return store.Incident{}, err
		}
	}

	if err := e.db.UpdateIncident(ctx, &inc); err != nil {
		if store.IsNotFound(err) {
			return store.Incident{}, NotFound("incident not found")
		}
		return store.Incident{}, fmt.Errorf("update incident: %w", err)
	}

	e.notifier.FireUpdated(inc, tier)
	return inc, nil
}

// SetStatus performs a guarded status transition, stamping resolvedAt and
// releasing vehicles where the target status demands it.
func (e *Engine) SetStatus(ctx context.Context, id uuid.UUID, status store.IncidentStatus, actor *string) (store.Incident, error) {
	inc, err := e.get(ctx, id)
	if err != nil {
		return store.Incident{}, err
	}

	if err := e.applyStatus(ctx, &inc, status, actor); err != nil {
		return store.Incident{}, err
	}
	if err := e.db.UpdateIncident(ctx, &inc); err != nil {
		return store.Incident{}, fmt.Errorf("update incident status: %w", err)
	}

	tier, err := e.catalog.Tier(ctx, inc.TierID)
	if err != nil {
		return store.Incident{}, err
	}
	e.notifier.FireUpdated(inc, tier)
	return inc, nil
}

// applyStatus mutates inc in place after validating the transition.
func (e *Engine) applyStatus(ctx context.Context, inc *store.Incident, status store.IncidentStatus, actor *string) error {
	if !canTransition(inc.Status, status) {
		return InvalidRequest(fmt.Sprintf("cannot transition incident from %s to %s", inc.Status, status))
	}

	old := string(inc.Status)
	inc.Status = status
	if status == store.IncidentStatusResolved {
		now := time.Now().UTC()
		inc.ResolvedAt = &now
	}

	if status == store.IncidentStatusResolved || status == store.IncidentStatusCancelled {
		if _, err := e.ReleaseVehicles(ctx, inc.ID); err != nil {
			return err
		}
	}

	newVal := string(status)
	e.audit(ctx, store.ActivityEntry{
		Kind:     "status_change",
		Actor:    actor,
		Message:  fmt.Sprintf("incident status changed from %s to %s", old, newVal),
		Marker:   incidentMarker(inc.ID),
		OldValue: &old,
		NewValue: &newVal,
	})
	return nil
}

// canTransition encodes the incident state machine: pending → in_progress →
// resolved, with cancellation allowed from either open state. Resolved and
// cancelled are terminal.
func canTransition(from, to store.IncidentStatus) bool {
	switch from {
	case store.IncidentStatusPending:
		return to == store.IncidentStatusInProgress || to == store.IncidentStatusCancelled
	case store.IncidentStatusInProgress:
		return to == store.IncidentStatusResolved || to == store.IncidentStatusCancelled
	default:
		return false
	}
}

// ReleaseVehicles detaches every vehicle from the incident and returns them
// to available unless under maintenance. Idempotent: with nothing attached
// it returns 0.
func (e *Engine) ReleaseVehicles(ctx context.Context, incidentID uuid.UUID) (int, error) {
	attached, err := e.db.ListIncidentVehicles(ctx, incidentID)
	if err != nil {
		return 0, fmt.Errorf("list attached vehicles: %w", err)
	}

	released := 0
	for _, v := range attached {
		if err := e.db.ReleaseVehicle(ctx, v.ID, incidentID); err != nil {
			return released, fmt.Errorf("release vehicle %s: %w", v.ID, err)
		}
		released++
	}

	if released > 0 {
		e.audit(ctx, store.ActivityEntry{
			Kind:    "vehicles_released",
			Message: fmt.Sprintf("%d vehicles released", released),
			Marker:  incidentMarker(incidentID),
		})
	}
	return released, nil
}

// Delete releases the incident's vehicles, removes the row and emits a
// fireUpdated event with the synthetic DELETED status so clients drop it
// from local caches.
func (e *Engine) Delete(ctx context.Context, id uuid.UUID, actor *string) error {
	inc, err := e.get(ctx, id)
	if err != nil {
		return err
	}
	tier, err := e.catalog.Tier(ctx, inc.TierID)
	if err != nil {
		return err
	}

	if _, err := e.ReleaseVehicles(ctx, id); err != nil {
		return err
	}
	if err := e.db.DeleteIncident(ctx, id); err != nil {
		if store.IsNotFound(err) {
			return NotFound("incident not found")
		}
		return fmt.Errorf("delete incident: %w", err)
	}

	e.audit(ctx, store.ActivityEntry{
		Kind:    "incident_deleted",
		Actor:   actor,
		Message: "incident deleted",
		Marker:  incidentMarker(id),
	})
	e.notifier.FireDeleted(inc, tier)
	return nil
}

// ChangeLevel moves an incident to a different severity tier, recording the
// old and new tier names in the audit log. Changing to the currently-active
// tier is rejected.
func (e *Engine) ChangeLevel(ctx context.Context, id, newTierID uuid.UUID, reason string, actor *string) (store.Incident, error) {
	inc, err := e.get(ctx, id)
	if err != nil {
		return store.Incident{}, err
	}
	if inc.TierID == newTierID {
		return store.Incident{}, InvalidRequest("incident already has this severity tier")
	}

	oldTier, err := e.catalog.Tier(ctx, inc.TierID)
	if err != nil {
		return store.Incident{}, err
	}
	newTier, err := e.catalog.Tier(ctx, newTierID)
	if err != nil {
		return store.Incident{}, err
	}

	inc.TierID = newTier.ID
	if err := e.db.UpdateIncident(ctx, &inc); err != nil {
		return store.Incident{}, fmt.Errorf("update incident tier: %w", err)
	}

	msg := fmt.Sprintf("severity tier changed from %q to %q", oldTier.Name, newTier.Name)
	if reason != "" {
		msg += ": " + reason
	}
	e.audit(ctx, store.ActivityEntry{
		Kind:     "level_change",
		Actor:    actor,
		Message:  msg,
		Marker:   incidentMarker(inc.ID),
		OldValue: &oldTier.Name,
		NewValue: &newTier.Name,
	})

	e.notifier.FireUpdated(inc, newTier)
	return inc, nil
}

// DeleteTier removes a severity tier unless any open incident still
// references it.
func (e *Engine) DeleteTier(ctx context.Context, tierID uuid.UUID) error {
	open, err := e.catalog.tiers.CountOpenIncidentsByTier(ctx, tierID)
	if err != nil {
		return fmt.Errorf("count open incidents: %w", err)
	}
	if open > 0 {
		return InvalidRequest(fmt.Sprintf("severity tier is referenced by %d open incidents", open))
	}
	if err := e.catalog.tiers.DeleteTier(ctx, tierID); err != nil {
		if store.IsNotFound(err) {
			return NotFound("severity tier not found")
		}
		return fmt.Errorf("delete tier: %w", err)
	}
	e.catalog.invalidate(ctx, tierID)
	return nil
}

// FileReport persists a report against an incident and notifies listeners.
func (e *Engine) FileReport(ctx context.Context, incidentID, authorID uuid.UUID, body string) (store.Report, error) {
	if _, err := e.get(ctx, incidentID); err != nil {
		return store.Report{}, err
	}

	rep := store.Report{IncidentID: incidentID, AuthorID: authorID, Body: body}
	if err := e.db.CreateReport(ctx, &rep); err != nil {
		return store.Report{}, fmt.Errorf("persist report: %w", err)
	}

	e.audit(ctx, store.ActivityEntry{
		Kind:    "report_filed",
		Message: "report filed",
		Marker:  incidentMarker(incidentID),
	})
	e.notifier.ReportCreated(rep)
	return rep, nil
}

// Get loads a single incident, KindNotFound when missing.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (store.Incident, error) {
	return e.get(ctx, id)
}

// Vehicles lists the vehicles currently attached to an incident.
func (e *Engine) Vehicles(ctx context.Context, incidentID uuid.UUID) ([]store.Vehicle, error) {
	return e.db.ListIncidentVehicles(ctx, incidentID)
}

// History returns the incident's audit entries via the marker search.
func (e *Engine) History(ctx context.Context, incidentID uuid.UUID, limit int32) ([]store.ActivityEntry, error) {
	return e.db.SearchActivity(ctx, incidentMarker(incidentID), limit)
}

// Reports returns the reports filed against an incident.
func (e *Engine) Reports(ctx context.Context, incidentID uuid.UUID) ([]store.Report, error) {
	return e.db.ListReportsByIncident(ctx, incidentID)
}

// List returns incidents, optionally scoped to a single station for
// station-bound dispatchers.
func (e *Engine) List(ctx context.Context, stationID *uuid.UUID, limit, offset int32) ([]store.Incident, error) {
	if stationID != nil {
		return e.db.ListIncidentsByStation(ctx, *stationID, limit, offset)
	}
	return e.db.ListIncidents(ctx, limit, offset)
}

func (e *Engine) get(ctx context.Context, id uuid.UUID) (store.Incident, error) {
	inc, err := e.db.GetIncident(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Incident{}, NotFound("incident not found")
		}
		return store.Incident{}, fmt.Errorf("load incident: %w", err)
	}
	return inc, nil
}

// audit records an activity entry; failures are logged and swallowed so
// they never abort the primary operation.
func (e *Engine) audit(ctx context.Context, entry store.ActivityEntry) {
	if err := e.db.RecordActivity(ctx, entry); err != nil {
		e.log.Warn().Err(err).Str("kind", entry.Kind).Msg("failed to record activity entry")
	}
}

func incidentMarker(id uuid.UUID) string {
	return "incident:" + id.String()
}

// RankStationsByDistance orders stations by haversine distance from the
// given point, ascending. The sort is stable so equal distances keep the
// store's iteration order; no stronger tie-break is defined.
func RankStationsByDistance(stations []store.Station, lat, lon float64) []store.Station {
	ranked := make([]store.Station, len(stations))
	copy(ranked, stations)
	sort.SliceStable(ranked, func(i, j int) bool {
		return geo.DistanceKm(lat, lon, ranked[i].Latitude, ranked[i].Longitude) <
			geo.DistanceKm(lat, lon, ranked[j].Latitude, ranked[j].Longitude)
	})
	return ranked
}
