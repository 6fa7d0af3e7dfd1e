package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_ColumnWidths(t *testing.T) {
	table := &Table{
		Headers: []string{"ID", "Name", "Status"},
		Rows: [][]string{
			{"abc123", "First item", "active"},
			{"def456", "Second item with longer name", "pending"},
		},
	}

	widths := table.ColumnWidths()

	assert.Equal(t, 6, widths[0])
	assert.Equal(t, 28, widths[1])
	assert.Equal(t, 7, widths[2])
}

func TestTable_ColumnWidths_Unicode(t *testing.T) {
	table := &Table{Headers: []string{"Name"}, Rows: [][]string{{"sessão"}}}
	assert.Equal(t, 6, table.ColumnWidths()[0], "widths count cells, not bytes")
}

func TestTable_ColumnWidths_MaxWidth(t *testing.T) {
	table := &Table{
		Headers:  []string{"ID", "Description"},
		Rows:     [][]string{{"a", "This is a very long description that should be truncated"}},
		MaxWidth: 20,
	}

	widths := table.ColumnWidths()

	assert.Equal(t, 2, widths[0])
	assert.Equal(t, 20, widths[1])
}

func TestTable_Render(t *testing.T) {
	table := &Table{
		Headers: []string{"ID", "Name"},
		Rows: [][]string{
			{"1", "Alice"},
			{"2", "Bob"},
		},
	}

	output := table.Render()

	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "Alice")
	assert.Contains(t, output, "Bob")
	assert.Contains(t, output, "─")
}

func TestTable_Render_Empty(t *testing.T) {
	assert.Empty(t, (&Table{}).Render())
}

func TestTable_Render_Truncation(t *testing.T) {
	table := &Table{
		Headers:  []string{"Text"},
		Rows:     [][]string{{"This is way too long"}},
		MaxWidth: 10,
	}

	output := table.Render()
	assert.Contains(t, output, "This is w…")
	assert.NotContains(t, output, "too long")
}

func TestTable_Render_RowsHaveFewerColumns(t *testing.T) {
	table := &Table{
		Headers: []string{"ID", "Name", "Status"},
		Rows:    [][]string{{"1", "Alice"}},
	}

	output := table.Render()
	assert.Contains(t, output, "Alice")
	lines := strings.Split(strings.TrimSpace(output), "\n")
	assert.Equal(t, 3, len(lines))
}

func TestFit(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"toolong", 4, "too…"},
		{"toolong", 1, "…"},
		{"\x1b[31mstyled text\x1b[0m", 3, "\x1b[31mstyled text\x1b[0m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fit(tt.in, tt.width), tt.in)
	}
}

func TestPadRight(t *testing.T) {
	tests := []struct {
		input    string
		width    int
		expected string
	}{
		{"abc", 5, "abc  "},
		{"hello", 5, "hello"},
		{"longer", 3, "longer"},
		{"", 3, "   "},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, padRight(tc.input, tc.width))
	}
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "3f2b9c1a", TruncateID("3f2b9c1a-77e4-4a0c-b2a5-0d1f6d0e1c2b"))
	assert.Equal(t, "short", TruncateID("short"))
	assert.Equal(t, "", TruncateID(""))
}
