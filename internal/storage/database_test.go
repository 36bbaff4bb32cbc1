package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"wolf-fhs280/internal/heatpump"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveSnapshot(t *testing.T) {
	db := openTestDB(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	snap := heatpump.NewSnapshot(at, map[string]heatpump.Value{
		"t1":             heatpump.Number(45.5),
		"compressor":     heatpump.Bool(true),
		"operating_mode": {Type: heatpump.Enum, Code: 1, Label: "eco"},
		"start_time":     heatpump.Clock(14, 30),
	})
	require.NoError(t, db.SaveSnapshot(snap, []string{"t1", "compressor", "operating_mode", "start_time", "missing"}))

	r, err := db.GetLatestReading("t1")
	require.NoError(t, err)
	assert.Equal(t, 45.5, r.Number)

	r, err = db.GetLatestReading("compressor")
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.Number)

	r, err = db.GetLatestReading("operating_mode")
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.Number)
	assert.Equal(t, "eco", r.Text)

	r, err = db.GetLatestReading("start_time")
	require.NoError(t, err)
	assert.Equal(t, float64(14*60+30), r.Number)
	assert.Equal(t, "14:30", r.Text)

	_, err = db.GetLatestReading("missing")
	assert.Error(t, err)
}

func TestSaveSnapshotEmpty(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.SaveSnapshot(nil, []string{"t1"}))
}

func TestReadingsQueries(t *testing.T) {
	db := openTestDB(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	for i := 0; i < 5; i++ {
		snap := heatpump.NewSnapshot(base.Add(time.Duration(i)*time.Minute), map[string]heatpump.Value{
			"t1": heatpump.Number(40 + float64(i)),
		})
		require.NoError(t, db.SaveSnapshot(snap, []string{"t1"}))
	}

	latest, err := db.GetLatestReading("t1")
	require.NoError(t, err)
	assert.Equal(t, 44.0, latest.Number)

	limited, err := db.GetReadingsWithLimit("t1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, 44.0, limited[0].Number)
	assert.Equal(t, 43.0, limited[1].Number)

	ranged, err := db.GetReadingsByRange("t1", base.Add(time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Len(t, ranged, 3)

	stats, err := db.GetDailyStats("t1", base)
	require.NoError(t, err)
	if base.Day() == base.Add(4*time.Minute).Day() {
		assert.Equal(t, int64(5), stats.ReadingsCount)
		assert.Equal(t, 40.0, stats.Min)
		assert.Equal(t, 44.0, stats.Max)
		assert.InDelta(t, 42.0, stats.Avg, 1e-9)
	}
}

func TestCleanOldReadings(t *testing.T) {
	db := openTestDB(t)

	old := heatpump.NewSnapshot(time.Now().Add(-48*time.Hour), map[string]heatpump.Value{"t1": heatpump.Number(1)})
	fresh := heatpump.NewSnapshot(time.Now(), map[string]heatpump.Value{"t1": heatpump.Number(2)})
	require.NoError(t, db.SaveSnapshot(old, []string{"t1"}))
	require.NoError(t, db.SaveSnapshot(fresh, []string{"t1"}))

	n, err := db.CleanOldReadings(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := db.GetReadingsWithLimit("t1", 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2.0, all[0].Number)
}

func TestSaveWrite(t *testing.T) {
	db := openTestDB(t)

	req := heatpump.WriteRequest{Field: "t_setpoint", Value: heatpump.Number(55)}
	res := heatpump.WriteResult{Field: "t_setpoint", Address: 4, Words: []uint16{55}, Value: heatpump.Number(55)}

	rec, err := db.SaveWrite("api", res, req, nil)
	require.NoError(t, err)
	assert.Len(t, rec.ID, 36)
	assert.Equal(t, "0x0037", rec.Words)
	assert.Empty(t, rec.Error)

	failed, err := db.SaveWrite("mqtt", heatpump.WriteResult{}, req, errors.New("boom"))
	require.NoError(t, err)
	assert.NotEqual(t, rec.ID, failed.ID)
	assert.Equal(t, "boom", failed.Error)

	writes, err := db.GetWrites(10)
	require.NoError(t, err)
	assert.Len(t, writes, 2)
}

func TestFormatWords(t *testing.T) {
	assert.Equal(t, "0x002D,0x0007", formatWords([]uint16{45, 7}))
	assert.Equal(t, "", formatWords(nil))
}
