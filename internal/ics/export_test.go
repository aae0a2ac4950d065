package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/eventcal/internal/model"
)

func TestExport(t *testing.T) {
	cst := time.FixedZone("UTC+08:00", 8*3600)
	events := []model.Event{
		{
			ID:          "evt-1",
			Title:       "Thesis review",
			Start:       time.Date(2024, 1, 10, 9, 0, 0, 0, cst),
			End:         time.Date(2024, 1, 10, 11, 0, 0, 0, cst),
			URL:         "https://example.com/review",
			Description: "bring drafts",
		},
		{
			ID:     "evt-2",
			Title:  "Holiday",
			Start:  time.Date(2024, 2, 10, 0, 0, 0, 0, cst),
			End:    time.Date(2024, 2, 11, 0, 0, 0, 0, cst),
			AllDay: true,
		},
	}
	tags := map[string]model.EventTags{
		"evt-1": {
			UrgencyTag: &model.Tag{ID: 3, Name: "Important"},
			TypeTags:   []model.Tag{{ID: 2, Name: "Study"}, {ID: 3, Name: "Academic"}},
		},
	}

	out := Export(events, tags, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, cal.Events(), 2)

	first := cal.Events()[0]
	assert.Equal(t, "evt-1", first.GetProperty(ical.ComponentPropertyUniqueId).Value)
	assert.Equal(t, "Thesis review", first.GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "bring drafts", first.GetProperty(ical.ComponentPropertyDescription).Value)
	assert.Contains(t, out, "CATEGORIES:Study,Academic")
	assert.Equal(t, "Important", first.GetProperty(PropertyUrgency).Value)

	start, err := first.GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(events[0].Start), "start %s", start)
	end, err := first.GetEndAt()
	require.NoError(t, err)
	assert.True(t, end.Equal(events[0].End), "end %s", end)

	second := cal.Events()[1]
	assert.Equal(t, "evt-2", second.GetProperty(ical.ComponentPropertyUniqueId).Value)
	assert.Equal(t, "20240210", second.GetProperty(ical.ComponentPropertyDtStart).Value)
	assert.Nil(t, second.GetProperty(ical.ComponentPropertyCategories))
	assert.Nil(t, second.GetProperty(PropertyUrgency))
	assert.Nil(t, second.GetProperty(ical.ComponentPropertyDescription))
}

func TestExport_Empty(t *testing.T) {
	out := Export(nil, nil, time.Now())

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	assert.Empty(t, cal.Events())
	assert.Contains(t, out, "PRODID:"+productID)
}
