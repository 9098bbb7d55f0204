package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"ventureflow/internal/config"
	"ventureflow/internal/models"
	"ventureflow/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) Profile(ctx context.Context, userID string, now time.Time) (Profile, error) {
	args := m.Called(ctx, userID, now)
	return args.Get(0).(Profile), args.Error(1)
}

func (m *MockHistory) RecordAttempt(ctx context.Context, userID string, now time.Time) error {
	args := m.Called(ctx, userID, now)
	return args.Error(0)
}

var noon = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func testFraudConfig() config.FraudConfig {
	return config.FraudConfig{
		MaxAmount:        100000,
		MaxAttemptsHour:  5,
		MaxDistanceKm:    500,
		AllowedStartHour: 6,
		AllowedEndHour:   23,
	}
}

func cleanAttempt(amount int64) Attempt {
	return Attempt{
		UserID:    "investor-1",
		Amount:    decimal.NewFromInt(amount),
		Currency:  "ZAR",
		Provider:  models.ProviderPayFast,
		IPAddress: "196.21.0.1",
		UserAgent: "Mozilla/5.0",
		Timestamp: noon,
	}
}

func TestAssess_AmountAboveCeilingOnCleanProfile(t *testing.T) {
	store := testutil.NewStore(t)
	history := new(MockHistory)
	history.On("Profile", mock.Anything, "investor-1", noon).Return(Profile{}, nil)
	history.On("RecordAttempt", mock.Anything, "investor-1", noon).Return(nil)

	svc := NewService(DefaultChecks(testFraudConfig(), nil), history, store.FraudLogs())

	got, err := svc.Assess(context.Background(), cleanAttempt(250000))
	require.NoError(t, err)
	assert.Equal(t, []string{"Amount Check"}, got.Reasons)
	assert.InDelta(t, 25.0, got.Score, 1e-9)
	assert.Equal(t, models.RiskLow, got.Risk)
	assert.False(t, got.Rejected())
	history.AssertExpectations(t)

	logs, err := store.FraudLogs().ListByUserSince(context.Background(), "investor-1", noon.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.RiskLow, logs[0].Level)
	assert.Equal(t, models.StringList{"Amount Check"}, logs[0].FailedChecks)
}

func TestAssess_HistoryFailureScoresEmptyProfile(t *testing.T) {
	store := testutil.NewStore(t)
	history := new(MockHistory)
	history.On("Profile", mock.Anything, mock.Anything, mock.Anything).Return(Profile{}, errors.New("db down"))
	history.On("RecordAttempt", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	svc := NewService(DefaultChecks(testFraudConfig(), nil), history, store.FraudLogs())

	got, err := svc.Assess(context.Background(), cleanAttempt(1000))
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Score)
	assert.Empty(t, got.Reasons)
	assert.Equal(t, models.RiskLow, got.Risk)
}

func TestAssess_HighRiskIsRejected(t *testing.T) {
	store := testutil.NewStore(t)
	history := new(MockHistory)
	history.On("Profile", mock.Anything, mock.Anything, mock.Anything).Return(Profile{
		RecentAttempts:    9,
		KnownDevices:      []string{"curl/8.0"},
		KnownLocations:    []Location{{Latitude: 51.5, Longitude: -0.12}},
		HistoricalAmounts: []float64{100, 110, 90},
	}, nil)
	history.On("RecordAttempt", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := NewService(DefaultChecks(testFraudConfig(), nil), history, store.FraudLogs())

	attempt := cleanAttempt(250000)
	attempt.Location = &Location{Latitude: -33.92, Longitude: 18.42}
	attempt.Timestamp = time.Date(2024, 5, 10, 3, 0, 0, 0, time.UTC)
	attempt.Currency = "eur"

	got, err := svc.Assess(context.Background(), attempt)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"Amount Check", "Velocity Check", "Location Check", "Device Check",
		"Time Check", "Amount Pattern Check", "Currency Check",
	}, got.Reasons)
	assert.InDelta(t, 90.0, got.Score, 1e-9)
	assert.Equal(t, models.RiskHigh, got.Risk)
	assert.True(t, got.Rejected())
}

type staticGeo struct {
	loc *Location
	err error
}

func (g staticGeo) Locate(context.Context, string) (*Location, error) { return g.loc, g.err }

func TestAssess_UsesGeoLocatorWhenNoLocationGiven(t *testing.T) {
	store := testutil.NewStore(t)
	history := new(MockHistory)
	history.On("Profile", mock.Anything, mock.Anything, mock.Anything).Return(Profile{
		KnownLocations: []Location{{Latitude: -26.2, Longitude: 28.04}},
	}, nil)
	history.On("RecordAttempt", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	far := NewService(DefaultChecks(testFraudConfig(), nil), history, store.FraudLogs(),
		WithGeoLocator(staticGeo{loc: &Location{Latitude: 40.71, Longitude: -74.0}}))
	got, err := far.Assess(context.Background(), cleanAttempt(1000))
	require.NoError(t, err)
	assert.Equal(t, []string{"Location Check"}, got.Reasons)

	failing := NewService(DefaultChecks(testFraudConfig(), nil), history, store.FraudLogs(),
		WithGeoLocator(staticGeo{err: errors.New("timeout")}))
	got, err = failing.Assess(context.Background(), cleanAttempt(1000))
	require.NoError(t, err)
	assert.Empty(t, got.Reasons)
}

func TestAssess_DefaultsTimestampToClock(t *testing.T) {
	store := testutil.NewStore(t)
	history := new(MockHistory)
	history.On("Profile", mock.Anything, mock.Anything, noon).Return(Profile{}, nil)
	history.On("RecordAttempt", mock.Anything, mock.Anything, noon).Return(nil)

	svc := NewService(DefaultChecks(testFraudConfig(), nil), history, store.FraudLogs(),
		WithClock(func() time.Time { return noon }))

	attempt := cleanAttempt(10)
	attempt.Timestamp = time.Time{}
	_, err := svc.Assess(context.Background(), attempt)
	require.NoError(t, err)
	history.AssertExpectations(t)
}

func TestLevelFor_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  models.RiskLevel
	}{
		{0, models.RiskLow},
		{39.999, models.RiskLow},
		{40, models.RiskMedium},
		{69.999, models.RiskMedium},
		{70, models.RiskHigh},
		{100, models.RiskHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.score), "score %v", tt.score)
	}
}

type fixedCheck struct {
	weight float64
	pass   bool
}

func (c fixedCheck) Name() string                                    { return "fixed" }
func (c fixedCheck) Weight() float64                                 { return c.weight }
func (c fixedCheck) Evaluate(context.Context, Attempt, Profile) bool { return c.pass }

func TestScore_RangeAndPluggability(t *testing.T) {
	tests := []struct {
		name   string
		checks []Check
		want   float64
	}{
		{name: "no checks", checks: nil, want: 0},
		{name: "all pass", checks: []Check{fixedCheck{10, true}, fixedCheck{30, true}}, want: 0},
		{name: "all fail", checks: []Check{fixedCheck{10, false}, fixedCheck{30, false}}, want: 100},
		{name: "exactly forty", checks: []Check{fixedCheck{40, false}, fixedCheck{60, true}}, want: 40},
		{name: "exactly seventy", checks: []Check{fixedCheck{7, false}, fixedCheck{3, true}}, want: 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(context.Background(), tt.checks, Attempt{}, Profile{})
			assert.InDelta(t, tt.want, got.Score, 1e-9)
			assert.GreaterOrEqual(t, got.Score, 0.0)
			assert.LessOrEqual(t, got.Score, 100.0)
			assert.Equal(t, LevelFor(got.Score), got.Risk)
		})
	}
}

func TestDefaultChecks_WeightsSumToHundred(t *testing.T) {
	var total float64
	for _, c := range DefaultChecks(testFraudConfig(), nil) {
		total += c.Weight()
	}
	assert.Equal(t, 100.0, total)
}
