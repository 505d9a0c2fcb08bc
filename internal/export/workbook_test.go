package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/starford/dossier/internal/models"
)

func TestWriteReport(t *testing.T) {
	company := "Able & Co"
	r := &models.RelationshipReport{
		TopFiles: []models.DegreeEntry{
			{Contact: models.Contact{ID: 1, FirstName: "Ann", LastName: "Able", FileNumber: "F100", Email: "ann@example.com", Company: &company}, Degree: 2},
			{Contact: models.Contact{ID: 4, FirstName: "Dan", LastName: "Dunn", FileNumber: "F400"}, Degree: 1},
		},
		TopClients: []models.DegreeEntry{
			{Contact: models.Contact{ID: 3, FirstName: "Cat", LastName: "Cole", FileNumber: "F300"}, Degree: 2},
		},
		Stats: models.LinkStats{Total: 4, Linked: 2, Unlinked: 2},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, r))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetTopFiles, SheetTopClients, SheetStats}, f.GetSheetList())

	rows, err := f.GetRows(SheetTopFiles)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, degreeHeader, rows[0])
	assert.Equal(t, []string{"1", "Ann Able (F100)", "F100", "ann@example.com", "Able & Co", "2"}, rows[1])
	assert.Equal(t, "Dan Dunn (F400)", rows[2][1])

	rows, err = f.GetRows(SheetTopClients)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Cat Cole (F300)", rows[1][1])

	rows, err = f.GetRows(SheetStats)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Metric", "Count"}, {"Total", "4"}, {"Linked", "2"}, {"Unlinked", "2"}}, rows)
}

func TestWriteReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, &models.RelationshipReport{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetTopFiles)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
