package dispatch

import (
	"context"
	"testing"

	"firewatch/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(fs *fakeStore) (*Engine, *fakeNotifier) {
	log := zerolog.Nop()
	notifier := newFakeNotifier()
	catalog := NewCatalog(fs, nil, log)
	classifier := NewClassifier(fs, fs, log)
	return NewEngine(fs, catalog, classifier, notifier, log), notifier
}

func req(vt store.VehicleType, count int32) store.TierRequirement {
	return store.TierRequirement{VehicleType: vt, Count: count}
}

func TestCreate_AllocatesInRequirementOrder(t *testing.T) {
	fs := newFakeStore()
	station := fs.addStation("central", 50.0, 30.0)
	e1 := fs.addVehicle(station.ID, store.VehicleTypeEngine, store.VehicleStatusAvailable)
	e2 := fs.addVehicle(station.ID, store.VehicleTypeEngine, store.VehicleStatusAvailable)
	fs.addVehicle(station.ID, store.VehicleTypeEngine, store.VehicleStatusAvailable)
	ladder := fs.addVehicle(station.ID, store.VehicleTypeLadder, store.VehicleStatusAvailable)
	fs.addVehicle(station.ID, store.VehicleTypeRescue, store.VehicleStatusAvailable)
	tier := fs.addTier(3, "Level 3", req(store.VehicleTypeEngine, 2), req(store.VehicleTypeLadder, 1))

	engine, notifier := newTestEngine(fs)
	inc, allocated, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)

	require.Len(t, allocated, 3)
	assert.Equal(t, []uuid.UUID{e1.ID, e2.ID, ladder.ID}, []uuid.UUID{allocated[0].ID, allocated[1].ID, allocated[2].ID})
	for _, v := range allocated {
		assert.Equal(t, store.VehicleStatusOnDuty, v.Status)
	}

	assert.Equal(t, station.ID, inc.StationID)
	assert.Equal(t, store.IncidentStatusPending, inc.Status)
	assert.Equal(t, []string{"fireCreated", "fireAssigned"}, notifier.names())
}

func TestCreate_ShortfallFallsBackToSecondNearestStation(t *testing.T) {
	fs := newFakeStore()
	// Station A is nearest but can only field one of the three required
	// vehicles; station B is fully stocked.
	stationA := fs.addStation("A", 50.00, 30.00)
	stationB := fs.addStation("B", 50.10, 30.00)
	engineA := fs.addVehicle(stationA.ID, store.VehicleTypeEngine, store.VehicleStatusAvailable)
	engineB1 := fs.addVehicle(stationB.ID, store.VehicleTypeEngine, store.VehicleStatusAvailable)
	engineB2 := fs.addVehicle(stationB.ID, store.VehicleTypeEngine, store.VehicleStatusAvailable)
	ladderB := fs.addVehicle(stationB.ID, store.VehicleTypeLadder, store.VehicleStatusAvailable)
	tier := fs.addTier(3, "Level 3", req(store.VehicleTypeEngine, 2), req(store.VehicleTypeLadder, 1))

	engine, _ := newTestEngine(fs)
	inc, allocated, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.001, Longitude: 30.0, TierID: &tier.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)

	// Only station A's engine was allocated; the incident was repointed at
	// station B without pulling any of B's vehicles.
	require.Len(t, allocated, 1)
	assert.Equal(t, engineA.ID, allocated[0].ID)
	assert.Equal(t, stationB.ID, inc.StationID)
	for _, id := range []uuid.UUID{engineB1.ID, engineB2.ID, ladderB.ID} {
		assert.Equal(t, store.VehicleStatusAvailable, fs.vehicles[id].Status)
	}
}

func TestCreate_SingleStationShortfallStaysPut(t *testing.T) {
	fs := newFakeStore()
	station := fs.addStation("only", 50.0, 30.0)
	fs.addVehicle(station.ID, store.VehicleTypeEngine, store.VehicleStatusAvailable)
	tier := fs.addTier(2, "Level 2", req(store.VehicleTypeEngine, 1), req(store.VehicleTypeLadder, 1))

	engine, _ := newTestEngine(fs)
	inc, allocated, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)
	assert.Len(t, allocated, 1)
	assert.Equal(t, station.ID, inc.StationID)
}

func TestCreate_NoSubstitutionAcrossVehicleTypes(t *testing.T) {
	fs := newFakeStore()
	station := fs.addStation("central", 50.0, 30.0)
	fs.addVehicle(station.ID, store.VehicleTypeEngine, store.VehicleStatusAvailable)
	fs.addVehicle(station.ID, store.VehicleTypeEngine, store.VehicleStatusAvailable)
	tier := fs.addTier(1, "Level 1", req(store.VehicleTypeLadder, 1))

	engine, _ := newTestEngine(fs)
	_, allocated, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)
	assert.Empty(t, allocated)
}

func TestCreate_SkipsUnavailableVehicles(t *testing.T) {
	fs := newFakeStore()
	station := fs.addStation("central", 50.0, 30.0)
	fs.addVehicle(station.ID, store.VehicleTypeEngine, store.VehicleStatusOnDuty)
	fs.addVehicle(station.ID, store.VehicleTypeEngine, store.VehicleStatusMaintenance)
	free := fs.addVehicle(station.ID, store.VehicleTypeEngine, store.VehicleStatusAvailable)
	tier := fs.addTier(1, "Level 1", req(store.VehicleTypeEngine, 2))

	engine, _ := newTestEngine(fs)
	_, allocated, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)
	require.Len(t, allocated, 1)
	assert.Equal(t, free.ID, allocated[0].ID)
}

func TestCreate_NoStationsConfigured(t *testing.T) {
	fs := newFakeStore()
	tier := fs.addTier(1, "Level 1")

	engine, _ := newTestEngine(fs)
	_, _, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, ReporterID: uuid.New(),
	})
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}

func TestCreate_UnknownExplicitStation(t *testing.T) {
	fs := newFakeStore()
	fs.addStation("central", 50.0, 30.0)
	tier := fs.addTier(1, "Level 1")
	missing := uuid.New()

	engine, _ := newTestEngine(fs)
	_, _, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, StationID: &missing, ReporterID: uuid.New(),
	})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCreate_UnknownExplicitTier(t *testing.T) {
	fs := newFakeStore()
	fs.addStation("central", 50.0, 30.0)
	missing := uuid.New()

	engine, _ := newTestEngine(fs)
	_, _, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &missing, ReporterID: uuid.New(),
	})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCreate_AssigneeDefaultsToReporter(t *testing.T) {
	fs := newFakeStore()
	fs.addStation("central", 50.0, 30.0)
	tier := fs.addTier(1, "Level 1")
	reporter := uuid.New()

	engine, _ := newTestEngine(fs)
	inc, _, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, ReporterID: reporter,
	})
	require.NoError(t, err)
	assert.Equal(t, reporter, inc.AssigneeID)
}

func TestSetStatus_GuardsTransitions(t *testing.T) {
	cases := []struct {
		from    store.IncidentStatus
		to      store.IncidentStatus
		allowed bool
	}{
		{store.IncidentStatusPending, store.IncidentStatusInProgress, true},
		{store.IncidentStatusPending, store.IncidentStatusCancelled, true},
		{store.IncidentStatusPending, store.IncidentStatusResolved, false},
		{store.IncidentStatusPending, store.IncidentStatusPending, false},
		{store.IncidentStatusInProgress, store.IncidentStatusResolved, true},
		{store.IncidentStatusInProgress, store.IncidentStatusCancelled, true},
		{store.IncidentStatusInProgress, store.IncidentStatusPending, false},
		{store.IncidentStatusResolved, store.IncidentStatusInProgress, false},
		{store.IncidentStatusCancelled, store.IncidentStatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, canTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestSetStatus_ResolveStampsTimeAndReleasesVehicles(t *testing.T) {
	fs := newFakeStore()
	station := fs.addStation("central", 50.0, 30.0)
	fs.addVehicle(station.ID, store.VehicleTypeEngine, store.VehicleStatusAvailable)
	tier := fs.addTier(1, "Level 1", req(store.VehicleTypeEngine, 1))

	engine, notifier := newTestEngine(fs)
	inc, allocated, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)
	require.Len(t, allocated, 1)

	_, err = engine.SetStatus(context.Background(), inc.ID, store.IncidentStatusInProgress, nil)
	require.NoError(t, err)

	resolved, err := engine.SetStatus(context.Background(), inc.ID, store.IncidentStatusResolved, nil)
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, store.VehicleStatusAvailable, fs.vehicles[allocated[0].ID].Status)
	assert.Empty(t, fs.links[inc.ID])
	assert.Contains(t, notifier.names(), "fireUpdated")
}

func TestSetStatus_UnknownIncident(t *testing.T) {
	fs := newFakeStore()
	engine, _ := newTestEngine(fs)
	_, err := engine.SetStatus(context.Background(), uuid.New(), store.IncidentStatusInProgress, nil)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestReleaseVehicles_Idempotent(t *testing.T) {
	fs := newFakeStore()
	station := fs.addStation("central", 50.0, 30.0)
	fs.addVehicle(station.ID, store.VehicleTypeEngine, store.VehicleStatusAvailable)
	tier := fs.addTier(1, "Level 1", req(store.VehicleTypeEngine, 1))

	engine, _ := newTestEngine(fs)
	inc, _, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)

	released, err := engine.ReleaseVehicles(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	released, err = engine.ReleaseVehicles(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Zero(t, released)
}

func TestReleaseVehicles_KeepsMaintenanceStatus(t *testing.T) {
	fs := newFakeStore()
	station := fs.addStation("central", 50.0, 30.0)
	v := fs.addVehicle(station.ID, store.VehicleTypeEngine, store.VehicleStatusAvailable)
	tier := fs.addTier(1, "Level 1", req(store.VehicleTypeEngine, 1))

	engine, _ := newTestEngine(fs)
	inc, _, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)

	// Vehicle entered the shop while attached.
	fs.vehicles[v.ID].Status = store.VehicleStatusMaintenance

	_, err = engine.ReleaseVehicles(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Equal(t, store.VehicleStatusMaintenance, fs.vehicles[v.ID].Status)
}

func TestDelete_ReleasesVehiclesAndNotifies(t *testing.T) {
	fs := newFakeStore()
	station := fs.addStation("central", 50.0, 30.0)
	v := fs.addVehicle(station.ID, store.VehicleTypeEngine, store.VehicleStatusAvailable)
	tier := fs.addTier(1, "Level 1", req(store.VehicleTypeEngine, 1))

	engine, notifier := newTestEngine(fs)
	inc, _, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)

	require.NoError(t, engine.Delete(context.Background(), inc.ID, nil))
	assert.Equal(t, store.VehicleStatusAvailable, fs.vehicles[v.ID].Status)
	_, err = engine.Get(context.Background(), inc.ID)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Contains(t, notifier.names(), "fireDeleted")
}

func TestChangeLevel_RejectsSameTier(t *testing.T) {
	fs := newFakeStore()
	fs.addStation("central", 50.0, 30.0)
	tier := fs.addTier(1, "Level 1")

	engine, _ := newTestEngine(fs)
	inc, _, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)

	_, err = engine.ChangeLevel(context.Background(), inc.ID, tier.ID, "", nil)
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}

func TestChangeLevel_RecordsOldAndNewNames(t *testing.T) {
	fs := newFakeStore()
	fs.addStation("central", 50.0, 30.0)
	low := fs.addTier(1, "Level 1")
	high := fs.addTier(4, "Level 4")

	engine, notifier := newTestEngine(fs)
	inc, _, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &low.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)

	updated, err := engine.ChangeLevel(context.Background(), inc.ID, high.ID, "fire spread to second floor", nil)
	require.NoError(t, err)
	assert.Equal(t, high.ID, updated.TierID)
	assert.Contains(t, notifier.names(), "fireUpdated")

	entries, err := engine.History(context.Background(), inc.ID, 10)
	require.NoError(t, err)
	var found bool
	for _, entry := range entries {
		if entry.Kind == "level_change" {
			found = true
			require.NotNil(t, entry.OldValue)
			require.NotNil(t, entry.NewValue)
			assert.Equal(t, "Level 1", *entry.OldValue)
			assert.Equal(t, "Level 4", *entry.NewValue)
			assert.Contains(t, entry.Message, "fire spread to second floor")
		}
	}
	assert.True(t, found, "expected a level_change audit entry")
}

func TestDeleteTier_BlockedByOpenIncidents(t *testing.T) {
	fs := newFakeStore()
	fs.addStation("central", 50.0, 30.0)
	tier := fs.addTier(1, "Level 1")

	engine, _ := newTestEngine(fs)
	inc, _, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)

	err = engine.DeleteTier(context.Background(), tier.ID)
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	// Once the incident is closed the tier can go.
	_, err = engine.SetStatus(context.Background(), inc.ID, store.IncidentStatusCancelled, nil)
	require.NoError(t, err)
	require.NoError(t, engine.DeleteTier(context.Background(), tier.ID))

	err = engine.DeleteTier(context.Background(), tier.ID)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestFileReport_NotifiesAndPersists(t *testing.T) {
	fs := newFakeStore()
	fs.addStation("central", 50.0, 30.0)
	tier := fs.addTier(1, "Level 1")

	engine, notifier := newTestEngine(fs)
	inc, _, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)

	author := uuid.New()
	rep, err := engine.FileReport(context.Background(), inc.ID, author, "two crews on scene, fire contained")
	require.NoError(t, err)
	assert.Equal(t, inc.ID, rep.IncidentID)
	assert.Equal(t, author, rep.AuthorID)
	assert.Contains(t, notifier.names(), "reportCreated")

	reports, err := engine.Reports(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestFileReport_UnknownIncident(t *testing.T) {
	fs := newFakeStore()
	engine, _ := newTestEngine(fs)
	_, err := engine.FileReport(context.Background(), uuid.New(), uuid.New(), "body")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCreate_AuditFailureDoesNotAbort(t *testing.T) {
	fs := newFakeStore()
	fs.addStation("central", 50.0, 30.0)
	tier := fs.addTier(1, "Level 1")
	fs.failActivity = true

	engine, _ := newTestEngine(fs)
	_, _, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, ReporterID: uuid.New(),
	})
	assert.NoError(t, err)
}

func TestRankStationsByDistance(t *testing.T) {
	far := store.Station{ID: uuid.New(), Latitude: 51.0, Longitude: 30.0}
	near := store.Station{ID: uuid.New(), Latitude: 50.01, Longitude: 30.0}
	mid := store.Station{ID: uuid.New(), Latitude: 50.5, Longitude: 30.0}

	ranked := RankStationsByDistance([]store.Station{far, near, mid}, 50.0, 30.0)
	assert.Equal(t, []uuid.UUID{near.ID, mid.ID, far.ID}, []uuid.UUID{ranked[0].ID, ranked[1].ID, ranked[2].ID})
}

func TestList_ScopesToStation(t *testing.T) {
	fs := newFakeStore()
	stationA := fs.addStation("A", 50.0, 30.0)
	stationB := fs.addStation("B", 55.0, 30.0)
	tier := fs.addTier(1, "Level 1")

	engine, _ := newTestEngine(fs)
	_, _, err := engine.Create(context.Background(), CreateParams{
		Latitude: 50.0, Longitude: 30.0, TierID: &tier.ID, StationID: &stationA.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)
	_, _, err = engine.Create(context.Background(), CreateParams{
		Latitude: 55.0, Longitude: 30.0, TierID: &tier.ID, StationID: &stationB.ID, ReporterID: uuid.New(),
	})
	require.NoError(t, err)

	all, err := engine.List(context.Background(), nil, 50, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := engine.List(context.Background(), &stationA.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, stationA.ID, scoped[0].StationID)
}
