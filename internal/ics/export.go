package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/nhle/eventcal/internal/model"
)

const productID = "-//eventcal//calendar export//EN"

// PropertyUrgency carries the urgency tag name of an exported event.
const PropertyUrgency ical.ComponentProperty = "X-EVENTCAL-URGENCY"

// Export renders events as an iCalendar document. Type tags become
// CATEGORIES and the urgency tag is written to PropertyUrgency. tags may
// be nil or miss events; those are exported without tag properties.
func Export(events []model.Event, tags map[string]model.EventTags, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, e := range events {
		ev := cal.AddEvent(e.ID)
		ev.SetDtStampTime(now.UTC())
		if e.AllDay {
			ev.SetAllDayStartAt(e.Start)
			ev.SetAllDayEndAt(e.End)
		} else {
			ev.SetStartAt(e.Start.UTC())
			ev.SetEndAt(e.End.UTC())
		}
		ev.SetSummary(e.Title)
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		if e.URL != "" {
			ev.SetURL(e.URL)
		}

		et, ok := tags[e.ID]
		if !ok {
			continue
		}
		if len(et.TypeTags) > 0 {
			names := make([]string, 0, len(et.TypeTags))
			for _, t := range et.TypeTags {
				names = append(names, t.Name)
			}
			ev.SetProperty(ical.ComponentPropertyCategories, strings.Join(names, ","))
		}
		if et.UrgencyTag != nil {
			ev.SetProperty(PropertyUrgency, et.UrgencyTag.Name)
		}
	}

	return cal.Serialize()
}
