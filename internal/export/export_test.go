package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpwatch/mca-insights/internal/model"
)

func sampleEvents() []model.ChangeEvent {
	oldStatus := model.String("ACTIVE")
	newStatus := model.String("STRIKE OFF")
	newCapital := model.Number(500000)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	return []model.ChangeEvent{
		{
			CIN:         "U12345MH2020PTC000001",
			Kind:        model.ChangeNewIncorporation,
			Date:        day,
			CompanyName: "ACME WIDGETS PRIVATE LIMITED",
			State:       "MAHARASHTRA",
			Status:      "ACTIVE",
		},
		{
			CIN:         "U12345MH2019PTC000002",
			Kind:        model.ChangeFieldUpdate,
			Field:       model.FieldStatus,
			OldValue:    &oldStatus,
			NewValue:    &newStatus,
			Date:        day,
			CompanyName: "BULK CHEMICALS LIMITED",
			State:       "MAHARASHTRA",
			Status:      "STRIKE OFF",
		},
		{
			CIN:         "U12345MH2018PTC000003",
			Kind:        model.ChangeFieldUpdate,
			Field:       model.FieldAuthorizedCapital,
			NewValue:    &newCapital,
			Date:        day,
			CompanyName: "COASTAL EXPORTS LLP",
			State:       "MAHARASHTRA",
			Status:      "ACTIVE",
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleEvents()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"U12345MH2020PTC000001", "New Incorporation", "", "", "",
		"2024-03-01", "ACME WIDGETS PRIVATE LIMITED", "MAHARASHTRA", "ACTIVE",
	}, rows[1])
	assert.Equal(t, []string{
		"U12345MH2019PTC000002", "Field Update", "status", "ACTIVE", "STRIKE OFF",
		"2024-03-01", "BULK CHEMICALS LIMITED", "MAHARASHTRA", "STRIKE OFF",
	}, rows[2])
	// absent old value renders as an empty cell
	assert.Equal(t, "", rows[3][3])
	assert.Equal(t, "500000", rows[3][4])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "CIN,Change_Type")
}

func TestWriteJSONRoundTrip(t *testing.T) {
	events := sampleEvents()

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, events))

	var decoded []model.ChangeEvent
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 3)

	assert.Equal(t, events[1].OldValue, decoded[1].OldValue)
	assert.Nil(t, decoded[2].OldValue)
	require.NotNil(t, decoded[2].NewValue)
	assert.Equal(t, "500000", decoded[2].NewValue.Display())
}

func TestWriteJSONEmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestKindLabelFallback(t *testing.T) {
	assert.Equal(t, "merger", KindLabel(model.ChangeKind("merger")))
}
