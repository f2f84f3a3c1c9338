package export

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset(rows int) Dataset {
	data := Dataset{
		Title:   "Overdue borrowings",
		Headers: []string{"Student", "Book", "Due"},
	}
	for i := 0; i < rows; i++ {
		data.Rows = append(data.Rows, []string{fmt.Sprintf("Student %d", i), "Dune", "2026-05-01"})
	}
	return data
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, format)

	format, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, format)
	assert.Equal(t, "application/pdf", format.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestRenderCSVKeepsHeaderOrder(t *testing.T) {
	out, err := Render(FormatCSV, sampleDataset(2))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\r\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student,Book,Due", lines[0])
	assert.Equal(t, "Student 1,Dune,2026-05-01", lines[2])
}

func TestRenderPDFSpansPages(t *testing.T) {
	out, err := Render(FormatPDF, sampleDataset(120))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRejectsEmptyHeaders(t *testing.T) {
	_, err := Render(FormatCSV, Dataset{})
	assert.Error(t, err)
	_, err = Render(FormatPDF, Dataset{})
	assert.Error(t, err)
}

func TestRenderCSVNeutralisesFormulas(t *testing.T) {
	data := Dataset{Headers: []string{"Student", "Note"}, Rows: [][]string{{"=HYPERLINK(\"x\")", "-2"}, {"Ana", "ok"}}}
	out, err := Render(FormatCSV, data)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\r\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `"'=HYPERLINK(""x"")",'-2`, lines[1])
	assert.Equal(t, "Ana,ok", lines[2])
}

func TestRenderRejectsRaggedRows(t *testing.T) {
	data := Dataset{Headers: []string{"A", "B"}, Rows: [][]string{{"only one"}}}
	_, err := Render(FormatCSV, data)
	assert.Error(t, err)
	_, err = Render(FormatPDF, data)
	assert.Error(t, err)
}
