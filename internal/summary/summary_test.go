package summary

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpwatch/mca-insights/internal/model"
	"github.com/corpwatch/mca-insights/pkg/anthropic"
)

func record(cin, state, status string, regn time.Time) model.CanonicalRecord {
	attrs := model.Attributes{
		model.FieldState: model.String(state),
	}
	if status != "" {
		attrs[model.FieldStatus] = model.String(status)
	}
	if !regn.IsZero() {
		attrs[model.FieldRegistrationDate] = model.Date(regn)
	}
	return model.CanonicalRecord{CIN: cin, Attributes: attrs}
}

func TestSummarize(t *testing.T) {
	d1 := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2021, 2, 10, 0, 0, 0, 0, time.UTC)
	snap := model.Snapshot{
		Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Records: map[string]model.CanonicalRecord{
			"C1": record("C1", "MAHARASHTRA", "ACTIVE", d2),
			"C2": record("C2", "MAHARASHTRA", "ACTIVE", d1),
			"C3": record("C3", "GUJARAT", "STRIKE OFF", time.Time{}),
			"C4": record("C4", "GUJARAT", "", time.Time{}),
		},
	}

	s := Summarize(snap)
	assert.Equal(t, 4, s.TotalRecords)
	assert.Equal(t, []Count{{"GUJARAT", 2}, {"MAHARASHTRA", 2}}, s.ByState)
	assert.Equal(t, []Count{{"ACTIVE", 2}, {"STRIKE OFF", 1}}, s.ByStatus)
	assert.Equal(t, 1, s.MissingStatus)
	require.NotNil(t, s.EarliestRegn)
	require.NotNil(t, s.LatestRegn)
	assert.Equal(t, d1, *s.EarliestRegn)
	assert.Equal(t, d2, *s.LatestRegn)
}

func TestSummarizeEmptySnapshot(t *testing.T) {
	s := Summarize(model.Snapshot{Records: map[string]model.CanonicalRecord{}})
	assert.Zero(t, s.TotalRecords)
	assert.Empty(t, s.ByState)
	assert.Nil(t, s.EarliestRegn)
}

func changeFixtures() []model.ChangeEvent {
	oldV := model.String("ACTIVE")
	newV := model.String("STRIKE OFF")
	return []model.ChangeEvent{
		{CIN: "C1", Kind: model.ChangeNewIncorporation, State: "MAHARASHTRA"},
		{CIN: "C2", Kind: model.ChangeNewIncorporation, State: "GUJARAT"},
		{CIN: "C3", Kind: model.ChangeDeregistration, State: "MAHARASHTRA"},
		{CIN: "C4", Kind: model.ChangeFieldUpdate, Field: model.FieldStatus,
			OldValue: &oldV, NewValue: &newV, State: "MAHARASHTRA"},
		{CIN: "C4", Kind: model.ChangeFieldUpdate, Field: model.FieldEmail, State: "MAHARASHTRA"},
		{CIN: "C5", Kind: model.ChangeFieldUpdate, Field: model.FieldStatus, State: "GUJARAT"},
	}
}

func TestSummarizeChanges(t *testing.T) {
	s := SummarizeChanges(changeFixtures())
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 2, s.NewIncorporation)
	assert.Equal(t, 1, s.Deregistration)
	assert.Equal(t, 3, s.FieldUpdate)
	assert.Equal(t, []Count{{"status", 2}, {"email", 1}}, s.UpdatedFields)
	assert.Equal(t, []Count{{"MAHARASHTRA", 4}, {"GUJARAT", 2}}, s.ByState)
}

type stubClient struct {
	req  anthropic.MessageRequest
	resp *anthropic.MessageResponse
	err  error
}

func (s *stubClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.req = req
	return s.resp, s.err
}

func TestDigestWithClient(t *testing.T) {
	stub := &stubClient{resp: &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "Quiet week overall.\n"}},
	}}

	g := NewGenerator(stub, "")
	got, err := g.Digest(context.Background(), "2024-03-01 to 2024-03-08", changeFixtures())
	require.NoError(t, err)
	assert.Equal(t, "Quiet week overall.", got)

	assert.Equal(t, anthropic.DefaultModel, stub.req.Model)
	assert.Contains(t, stub.req.Messages[0].Content, "Total changes: 6")
	assert.Contains(t, stub.req.Messages[0].Content, "New Incorporation")
	assert.Contains(t, stub.req.Messages[0].Content, `"ACTIVE" -> "STRIKE OFF"`)
}

func TestDigestNoClientFallsBack(t *testing.T) {
	g := NewGenerator(nil, "")
	got, err := g.Digest(context.Background(), "2024-03", changeFixtures())
	require.NoError(t, err)
	assert.Contains(t, got, "6 changes in total")
	assert.Contains(t, got, "Most-changed field: status (2 updates)")
	assert.Contains(t, got, "Most active state: MAHARASHTRA (4 changes)")
}

func TestDigestClientError(t *testing.T) {
	g := NewGenerator(&stubClient{err: assert.AnError}, "")
	_, err := g.Digest(context.Background(), "w", nil)
	assert.Error(t, err)
}

func TestPromptCapsSampleEvents(t *testing.T) {
	events := make([]model.ChangeEvent, maxPromptEvents+5)
	for i := range events {
		events[i] = model.ChangeEvent{CIN: "C", Kind: model.ChangeNewIncorporation}
	}
	prompt := buildPrompt("w", SummarizeChanges(events), events)
	assert.Contains(t, prompt, "... and 5 more")
}
