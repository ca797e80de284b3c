package scan

import (
	"bytes"
	"context"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"reefscan/internal/stress"
)

// setupTestDB prepares an in-memory SQLite database with the scan table.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to initialize test database")
	require.NoError(t, NewStore(db).Migrate(), "failed to migrate table")
	return db
}

func ptr(v float64) *float64 { return &v }

func seed(t *testing.T, s *Store, at time.Time, lat, lon *float64, fsi float64) Scan {
	t.Helper()
	sc := Scan{CreatedAt: at, Latitude: lat, Longitude: lon, FinalStressIndex: fsi, DominantLabel: "Healthy"}
	require.NoError(t, s.Create(context.Background(), &sc))
	return sc
}

func TestCreateAssignsID(t *testing.T) {
	s := NewStore(setupTestDB(t))
	sc := Scan{DominantLabel: "Dead"}
	require.NoError(t, s.Create(context.Background(), &sc))

	assert.Len(t, sc.ID, 36)
	assert.False(t, sc.CreatedAt.IsZero())

	rows, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, sc.ID, rows[0].ID)
	assert.Nil(t, rows[0].Latitude)
}

func TestListOrderedByCreation(t *testing.T) {
	s := NewStore(setupTestDB(t))
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	late := seed(t, s, base.Add(2*time.Hour), ptr(1), ptr(2), 0.5)
	early := seed(t, s, base, ptr(1), ptr(2), 0.3)

	rows, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, early.ID, rows[0].ID)
	assert.Equal(t, late.ID, rows[1].ID)
}

func TestSitesSkipUnlocatedScans(t *testing.T) {
	s := NewStore(setupTestDB(t))
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	seed(t, s, base, ptr(-16.3), ptr(145.8), 0.2)
	seed(t, s, base.Add(time.Hour), nil, nil, 0.9)
	seed(t, s, base.Add(2*time.Hour), ptr(12.5), nil, 0.9)
	seed(t, s, base.Add(3*time.Hour), ptr(-18), ptr(147.5), 0.6)
	seed(t, s, base.Add(4*time.Hour), ptr(-16.3), ptr(145.8), 0.4)

	sites, err := s.Sites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 2)

	assert.Equal(t, "-16.3, 145.8", sites[0].Location)
	require.Len(t, sites[0].Scans, 2)
	assert.Equal(t, 0.2, sites[0].Scans[0].FinalStressIndex)
	assert.Equal(t, 0.4, sites[0].Scans[1].FinalStressIndex)

	assert.Equal(t, "-18, 147.5", sites[1].Location)
	assert.Len(t, sites[1].Scans, 1)

	scans, err := s.SiteScans(context.Background(), "-18, 147.5")
	require.NoError(t, err)
	assert.Len(t, scans, 1)

	_, err = s.SiteScans(context.Background(), "0, 0")
	assert.ErrorIs(t, err, ErrSiteNotFound)
}

func TestSiteKey(t *testing.T) {
	assert.Equal(t, "12.5, -3", SiteKey(12.5, -3))
	assert.Equal(t, "0.0001, 100", SiteKey(0.0001, 100))
}

func TestFromAssessment(t *testing.T) {
	a := stress.Assessment{
		PatchLabel:       stress.PatchLabel{Label: "Bleached_Mild", Confidence: 0.7},
		PatchStress:      1.2,
		FinalStressIndex: 0.45,
		MainFactor:       stress.FactorPollution,
		Recovery:         stress.RecoveryModerate,
	}
	cond := stress.Conditions{SurfaceTemp: 30, WQI: 55, PH: 8.1}
	sc := FromAssessment(a, cond, ptr(1), ptr(2))

	assert.Equal(t, "Bleached_Mild", sc.DominantLabel)
	assert.Equal(t, 0.45, sc.FinalStressIndex)
	assert.Equal(t, stress.FactorPollution, sc.MainStressFactor)
	assert.Equal(t, 55.0, sc.WQI)
	key, ok := sc.Site()
	assert.True(t, ok)
	assert.Equal(t, "1, 2", key)
}

func TestOpenSQLite(t *testing.T) {
	db, err := Open(DBOptions{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable(&Scan{}))

	_, err = Open(DBOptions{Driver: "mysql"}, nil)
	assert.Error(t, err)
}

func TestWriteTrend(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	scans := []Scan{
		{CreatedAt: base, FinalStressIndex: 0.3},
		{CreatedAt: base.Add(24 * time.Hour), FinalStressIndex: 0.6},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTrend(&buf, "1, 2", scans))
	_, err := png.Decode(&buf)
	require.NoError(t, err)

	buf.Reset()
	require.NoError(t, WriteTrend(&buf, "1, 2", scans[:1]))

	assert.Error(t, WriteTrend(&buf, "1, 2", nil))
}
