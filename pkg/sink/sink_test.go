package sink

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reformagkh/pkg/config"
	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

var testNow = time.Date(2024, 5, 17, 9, 30, 15, 0, time.UTC)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func ptr[T any](v T) *T { return &v }

func sampleEntries() []models.AttributeEntry {
	return []models.AttributeEntry{
		{HouseID: "101", AttrName: "Общие сведения->Год", FoundName: ptr("Год ввода"), EditDistance: ptr(6), Value: ptr("1975")},
		{HouseID: "101", AttrName: "Общие сведения->Серия", FoundName: ptr("Серия"), EditDistance: ptr(0), Value: ptr(models.ValueNotFound)},
		{HouseID: "101", AttrName: "Общие сведения->Лифты"},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVRecordSink_HeaderOnceAcrossAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "housedata.csv")

	for _, id := range []models.HouseID{"1", "2"} {
		s, err := NewCSVRecordSink(path, config.ModeAppend, testNow, testLogger())
		require.NoError(t, err)
		require.NoError(t, s.WriteRecord(models.AttributeRecord{HouseID: id, Address: "ул. Ленина, 1", CadNo: "77:01"}))
		require.NoError(t, s.Close())
	}

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, models.FixedHeader, rows[0])
	assert.Equal(t, "1", rows[1][2])
	assert.Equal(t, "2", rows[2][2])
	assert.Equal(t, "ул. Ленина, 1", rows[1][3])
	assert.NotContains(t, rows[1], "77:01")
}

func TestCSVRecordSink_OverwriteBacksUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "housedata.csv")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0644))

	s, err := NewCSVRecordSink(path, config.ModeOverwrite, testNow, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.WriteRecord(models.AttributeRecord{HouseID: "9"}))
	require.NoError(t, s.Close())

	backup, err := os.ReadFile(path + "." + testNow.Format(utils.BackupTimeLayout))
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(backup))

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, models.FixedHeader, rows[0])
}

func TestCSVEntrySink_NullsAreEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attrs.csv")
	s, err := NewCSVEntrySink(path, config.ModeAppend, testNow, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.WriteEntries(sampleEntries()))
	require.NoError(t, s.Close())

	rows := readCSV(t, path)
	assert.Equal(t, [][]string{
		models.EntryHeader,
		{"101", "Общие сведения->Год", "Год ввода", "6", "1975"},
		{"101", "Общие сведения->Серия", "Серия", "0", "not found"},
		{"101", "Общие сведения->Лифты", "", "", ""},
	}, rows)
}

func newMemoryTable(t *testing.T) *TableEntrySink {
	t.Helper()
	s, err := NewTableEntrySink(DriverSQLite, ":memory:", "", config.ModeAppend, testNow, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTableEntrySink_RoundTrip(t *testing.T) {
	s := newMemoryTable(t)
	entries := sampleEntries()
	require.NoError(t, s.WriteEntries(entries))

	for _, want := range entries {
		got, ok, err := s.Lookup(want.HouseID, want.AttrName)
		require.NoError(t, err)
		require.True(t, ok, want.AttrName)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("entry %s mismatch (-want +got):\n%s", want.AttrName, diff)
		}
	}

	_, ok, err := s.Lookup("101", "нет такого")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTableEntrySink_DuplicateIsNoop(t *testing.T) {
	s := newMemoryTable(t)
	require.NoError(t, s.WriteEntries(sampleEntries()))

	dup := models.AttributeEntry{HouseID: "101", AttrName: "Общие сведения->Год", FoundName: ptr("другое"), EditDistance: ptr(9), Value: ptr("2000")}
	require.NoError(t, s.WriteEntries([]models.AttributeEntry{dup}))

	got, ok, err := s.Lookup("101", "Общие сведения->Год")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1975", *got.Value, "first write wins")

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM attrvals").Scan(&n))
	assert.Equal(t, 3, n)
}

func TestTableEntrySink_SQLiteFileOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attrs.sqlite")

	s, err := NewTableEntrySink(DriverSQLite, path, "", config.ModeAppend, testNow, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.WriteEntries(sampleEntries()))
	require.NoError(t, s.Close())

	s, err = NewTableEntrySink(DriverSQLite, path, "", config.ModeOverwrite, testNow, testLogger())
	require.NoError(t, err)
	defer s.Close()
	_, ok, err := s.Lookup("101", "Общие сведения->Год")
	require.NoError(t, err)
	assert.False(t, ok, "overwrite starts from an empty database")
	assert.FileExists(t, path+"."+testNow.Format(utils.BackupTimeLayout))
}

func TestNewTableEntrySink_InvalidTable(t *testing.T) {
	_, err := NewTableEntrySink(DriverSQLite, ":memory:", "attrs; DROP TABLE x", config.ModeAppend, testNow, testLogger())
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestOpenSinks(t *testing.T) {
	dir := t.TempDir()

	_, err := OpenRecordSink(config.OutputConfig{Format: config.FormatSQLite, Path: filepath.Join(dir, "x")}, testNow, testLogger())
	assert.ErrorIs(t, err, utils.ErrConfigValidation)

	rs, err := OpenRecordSink(config.OutputConfig{Format: config.FormatCSV, Mode: config.ModeAppend, Path: filepath.Join(dir, "r.csv")}, testNow, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &CSVRecordSink{}, rs)
	require.NoError(t, rs.Close())

	es, err := OpenEntrySink(config.OutputConfig{Format: config.FormatSQLite, Mode: config.ModeAppend, Path: ":memory:"}, testNow, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &TableEntrySink{}, es)
	require.NoError(t, es.Close())

	_, err = OpenEntrySink(config.OutputConfig{Format: "xml"}, testNow, testLogger())
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}
