package dispatch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"firewatch/internal/store"

	"github.com/google/uuid"
)

// fakeStore is an in-memory Storage, TierStore and RuleStore for engine and
// classifier tests. It mirrors the ordering guarantees of the real queries.
type fakeStore struct {
	mu sync.Mutex

	incidents map[uuid.UUID]store.Incident
	stations  []store.Station
	vehicles  map[uuid.UUID]*store.Vehicle
	vehicleIn []uuid.UUID // insertion order
	tiers     []store.SeverityTier
	reqs      map[uuid.UUID][]store.TierRequirement
	rules     []store.AddressRule
	links     map[uuid.UUID][]uuid.UUID // incident -> vehicles, attach order
	activity  []store.ActivityEntry
	reports   []store.Report

	failActivity bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		incidents: make(map[uuid.UUID]store.Incident),
		vehicles:  make(map[uuid.UUID]*store.Vehicle),
		reqs:      make(map[uuid.UUID][]store.TierRequirement),
		links:     make(map[uuid.UUID][]uuid.UUID),
	}
}

func (f *fakeStore) addStation(name string, lat, lon float64) store.Station {
	st := store.Station{ID: uuid.New(), Name: name, Address: name, Latitude: lat, Longitude: lon, CreatedAt: time.Now()}
	f.stations = append(f.stations, st)
	return st
}

func (f *fakeStore) addVehicle(stationID uuid.UUID, vt store.VehicleType, status store.VehicleStatus) store.Vehicle {
	v := store.Vehicle{ID: uuid.New(), Model: string(vt) + "-unit", Type: vt, Status: status, StationID: stationID}
	f.vehicles[v.ID] = &v
	f.vehicleIn = append(f.vehicleIn, v.ID)
	return v
}

func (f *fakeStore) addTier(ordinal int32, name string, reqs ...store.TierRequirement) store.SeverityTier {
	tier := store.SeverityTier{ID: uuid.New(), Ordinal: ordinal, Name: name}
	f.tiers = append(f.tiers, tier)
	for i := range reqs {
		reqs[i].TierID = tier.ID
		reqs[i].Position = int32(i + 1)
	}
	f.reqs[tier.ID] = reqs
	return tier
}

func (f *fakeStore) addRule(address string, lat, lon *float64, tierID uuid.UUID) store.AddressRule {
	r := store.AddressRule{ID: uuid.New(), Address: address, Latitude: lat, Longitude: lon, TierID: tierID, CreatedAt: time.Now()}
	f.rules = append(f.rules, r)
	return r
}

// ===== Storage =====

func (f *fakeStore) CreateIncident(_ context.Context, inc *store.Incident) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc.ID = uuid.New()
	inc.CreatedAt = time.Now()
	inc.UpdatedAt = inc.CreatedAt
	f.incidents[inc.ID] = *inc
	return nil
}

func (f *fakeStore) GetIncident(_ context.Context, id uuid.UUID) (store.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[id]
	if !ok {
		return store.Incident{}, store.ErrNoRows
	}
	return inc, nil
}

func (f *fakeStore) UpdateIncident(_ context.Context, inc *store.Incident) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.incidents[inc.ID]; !ok {
		return store.ErrNoRows
	}
	inc.UpdatedAt = time.Now()
	f.incidents[inc.ID] = *inc
	return nil
}

func (f *fakeStore) DeleteIncident(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.incidents[id]; !ok {
		return store.ErrNoRows
	}
	delete(f.incidents, id)
	delete(f.links, id)
	return nil
}

func (f *fakeStore) ListIncidents(_ context.Context, limit, offset int32) ([]store.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Incident, 0, len(f.incidents))
	for _, inc := range f.incidents {
		out = append(out, inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (f *fakeStore) ListIncidentsByStation(_ context.Context, stationID uuid.UUID, limit, offset int32) ([]store.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Incident
	for _, inc := range f.incidents {
		if inc.StationID == stationID {
			out = append(out, inc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func page(incs []store.Incident, limit, offset int32) []store.Incident {
	if int(offset) >= len(incs) {
		return nil
	}
	incs = incs[offset:]
	if int(limit) < len(incs) {
		incs = incs[:limit]
	}
	return incs
}

func (f *fakeStore) ListStations(_ context.Context) ([]store.Station, error) {
	return append([]store.Station(nil), f.stations...), nil
}

func (f *fakeStore) ListAvailableVehicles(_ context.Context, stationID uuid.UUID) ([]store.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Vehicle
	for _, id := range f.vehicleIn {
		v := f.vehicles[id]
		if v.StationID == stationID && v.Status == store.VehicleStatusAvailable {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *fakeStore) ListIncidentVehicles(_ context.Context, incidentID uuid.UUID) ([]store.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Vehicle
	for _, id := range f.links[incidentID] {
		out = append(out, *f.vehicles[id])
	}
	return out, nil
}

func (f *fakeStore) AssignVehicle(_ context.Context, vehicleID, incidentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[incidentID] = append(f.links[incidentID], vehicleID)
	f.vehicles[vehicleID].Status = store.VehicleStatusOnDuty
	return nil
}

func (f *fakeStore) ReleaseVehicle(_ context.Context, vehicleID, incidentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	attached := f.links[incidentID]
	for i, id := range attached {
		if id == vehicleID {
			f.links[incidentID] = append(attached[:i:i], attached[i+1:]...)
			break
		}
	}
	if v := f.vehicles[vehicleID]; v.Status != store.VehicleStatusMaintenance {
		v.Status = store.VehicleStatusAvailable
	}
	return nil
}

func (f *fakeStore) CreateReport(_ context.Context, rep *store.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rep.ID = uuid.New()
	rep.CreatedAt = time.Now()
	f.reports = append(f.reports, *rep)
	return nil
}

func (f *fakeStore) ListReportsByIncident(_ context.Context, incidentID uuid.UUID) ([]store.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Report
	for _, rep := range f.reports {
		if rep.IncidentID == incidentID {
			out = append(out, rep)
		}
	}
	return out, nil
}

func (f *fakeStore) RecordActivity(_ context.Context, entry store.ActivityEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failActivity {
		return store.ErrNoRows
	}
	entry.ID = int64(len(f.activity) + 1)
	entry.CreatedAt = time.Now()
	f.activity = append(f.activity, entry)
	return nil
}

func (f *fakeStore) SearchActivity(_ context.Context, marker string, limit int32) ([]store.ActivityEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ActivityEntry
	for i := len(f.activity) - 1; i >= 0 && int32(len(out)) < limit; i-- {
		if strings.Contains(f.activity[i].Marker, marker) {
			out = append(out, f.activity[i])
		}
	}
	return out, nil
}

// ===== TierStore =====

func (f *fakeStore) GetTier(_ context.Context, id uuid.UUID) (store.SeverityTier, error) {
	for _, t := range f.tiers {
		if t.ID == id {
			return t, nil
		}
	}
	return store.SeverityTier{}, store.ErrNoRows
}

func (f *fakeStore) ListTiers(_ context.Context) ([]store.SeverityTier, error) {
	out := append([]store.SeverityTier(nil), f.tiers...)
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (f *fakeStore) TierRequirements(_ context.Context, tierID uuid.UUID) ([]store.TierRequirement, error) {
	return append([]store.TierRequirement(nil), f.reqs[tierID]...), nil
}

func (f *fakeStore) CountOpenIncidentsByTier(_ context.Context, tierID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, inc := range f.incidents {
		if inc.TierID == tierID && inc.Open() {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DeleteTier(_ context.Context, tierID uuid.UUID) error {
	for i, t := range f.tiers {
		if t.ID == tierID {
			f.tiers = append(f.tiers[:i:i], f.tiers[i+1:]...)
			delete(f.reqs, tierID)
			return nil
		}
	}
	return store.ErrNoRows
}

// ===== RuleStore =====

func (f *fakeStore) FindRuleByExactAddress(_ context.Context, address string) (store.AddressRule, error) {
	for _, r := range f.rules {
		if strings.EqualFold(r.Address, address) {
			return r, nil
		}
	}
	return store.AddressRule{}, store.ErrNoRows
}

func (f *fakeStore) FindRuleByContainment(_ context.Context, address string) (store.AddressRule, error) {
	lowered := strings.ToLower(address)
	for _, r := range f.rules {
		ruleAddr := strings.ToLower(r.Address)
		if strings.Contains(lowered, ruleAddr) || strings.Contains(ruleAddr, lowered) {
			return r, nil
		}
	}
	return store.AddressRule{}, store.ErrNoRows
}

func (f *fakeStore) ListRulesWithCoordinates(_ context.Context) ([]store.AddressRule, error) {
	var out []store.AddressRule
	for _, r := range f.rules {
		if r.Latitude != nil && r.Longitude != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeNotifier records emitted events in order.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
	last   map[string]store.Incident
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{last: make(map[string]store.Incident)}
}

func (n *fakeNotifier) record(event string, inc store.Incident) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.last[event] = inc
}

func (n *fakeNotifier) FireCreated(inc store.Incident, _ store.SeverityTier)  { n.record("fireCreated", inc) }
func (n *fakeNotifier) FireUpdated(inc store.Incident, _ store.SeverityTier)  { n.record("fireUpdated", inc) }
func (n *fakeNotifier) FireDeleted(inc store.Incident, _ store.SeverityTier)  { n.record("fireDeleted", inc) }
func (n *fakeNotifier) FireAssigned(inc store.Incident, _ store.SeverityTier) { n.record("fireAssigned", inc) }
func (n *fakeNotifier) ReportCreated(rep store.Report) {
	n.record("reportCreated", store.Incident{ID: rep.IncidentID})
}

func (n *fakeNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}
