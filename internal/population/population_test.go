package population

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"go-school-projections/internal/model"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const lazioFile = "\ufeff\"Popolazione per età - Regione Lazio\"\n" +
	"\"Scenario: mediano, basso, alto\"\n" +
	"\"Età\";\"Anno\";\"Scenario mediano\";\"Scenario basso\"\n" +
	"\"5\";\"2030\";\"1000\";\"900\"\n" +
	"\"6\";\"2030\";\"100\";\"90\"\n" +
	"\"10\";\"2030\";\"50\";\"40\"\n" +
	"\"11\";\"2030\";\"999\";\"1\"\n" +
	"\"8\";\"2031\";\"\";\"1\"\n" +
	"\"7\";\"2029\";\"20\";\"1\"\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegionFromFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"it-Popolazione_per_eta_-_Regione_Lazio.csv", "Lazio", true},
		{"/data/it-Popolazione_per_eta_-_Regione_Valle_d'Aosta.csv", "Valle d'Aosta", true},
		{"it-Popolazione_per_eta_-_Regione_Emilia-Romagna.csv", "Emilia-Romagna", true},
		{"popolazione.csv", "", false},
	}
	for _, tt := range tests {
		got, ok := RegionFromFilename(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCountFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "it-Popolazione_per_eta_-_Regione_Lazio.csv", lazioFile)

	got, err := CountFile(path)
	require.NoError(t, err)
	want := []model.PopulationRow{
		{Region: "Lazio", Year: 2029, Children6to10: model.Some(20)},
		{Region: "Lazio", Year: 2030, Children6to10: model.Some(150)},
		{Region: "Lazio", Year: 2031},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CountFile mismatch (-want +got):\n%s", diff)
	}
}

func TestCountFileCanonicalizesRegion(t *testing.T) {
	path := writeFile(t, t.TempDir(), "it-Popolazione_per_eta_-_Regione_Valle_d'Aosta.csv", lazioFile)
	got, err := CountFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Valle d Aosta-Vallee d Aoste", got[0].Region)
}

func TestCountFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := CountFile(writeFile(t, dir, "other.csv", lazioFile))
	assert.ErrorContains(t, err, "region name")

	noAge := "meta\nmeta\n\"Anno\";\"Scenario mediano\"\n\"2030\";\"1\"\n"
	_, err = CountFile(writeFile(t, dir, "it-Popolazione_per_eta_-_Regione_Umbria.csv", noAge))
	assert.ErrorContains(t, err, "missing column")

	adultsOnly := "meta\nmeta\n\"Età\";\"Anno\";\"Scenario mediano\"\n\"40\";\"2030\";\"1\"\n"
	_, err = CountFile(writeFile(t, dir, "it-Popolazione_per_eta_-_Regione_Marche.csv", adultsOnly))
	assert.ErrorIs(t, err, model.ErrNoData)
}

func TestCountDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "it-Popolazione_per_eta_-_Regione_Lazio.csv", lazioFile)
	writeFile(t, dir, "it-Popolazione_per_eta_-_Regione_Molise.csv",
		"meta\nmeta\nEtà;Anno;Scenario mediano\n6;2030;10\n9;2030;5\n")
	writeFile(t, dir, "it-Popolazione_per_eta_-_Regione_Umbria.csv", "meta\nmeta\nAnno;Valore\n2030;1\n")
	writeFile(t, dir, "unrelated.csv", "a,b\n1,2\n")

	res, err := CountDir(context.Background(), dir, "", 2, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Files)
	assert.Len(t, res.Failed, 1)
	require.Len(t, res.Rows, 4)
	assert.Equal(t, "Lazio", res.Rows[0].Region)
	assert.Equal(t, model.PopulationRow{Region: "Molise", Year: 2030, Children6to10: model.Some(15)}, res.Rows[3])

	_, err = CountDir(context.Background(), t.TempDir(), "", 2, zap.NewNop())
	assert.ErrorIs(t, err, model.ErrNoData)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []model.PopulationRow{
		{Region: "Lazio", Year: 2030, Children6to10: model.Some(150)},
		{Region: "Lazio", Year: 2031},
	}))
	assert.Equal(t, "Region,Year,Children_6_10\nLazio,2030,150\nLazio,2031,\n", buf.String())

	path := filepath.Join(t.TempDir(), "out", "children.csv")
	require.NoError(t, WriteFile(path, nil))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Region,Year,Children_6_10\n", string(raw))
}
