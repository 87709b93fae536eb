package ingest

import (
	"encoding/json"
	"time"

	"github.com/sells-group/property-scorer/internal/model"
)

// Repoint moves a bundle onto property id: its events and links follow.
func Repoint(b *model.Bundle, id string) {
	if b.Property.ID == id {
		return
	}
	b.Property.ID = id
	for i := range b.Events {
		b.Events[i].PropertyID = id
	}
	links := b.Links
	b.Links = nil
	for _, l := range links {
		l.PropertyID = id
		b.Links = model.UpsertLink(b.Links, l)
	}
}

// MergeProperty fills fields the incoming property lacks from the stored
// one. Resolved location and county are never replaced by unknowns.
func MergeProperty(stored model.Property, p *model.Property) {
	p.CreatedAt = stored.CreatedAt

	if !p.HasCoordinates() && stored.HasCoordinates() {
		p.Lat, p.Lon = stored.Lat, stored.Lon
	}
	if p.DistanceNashMi == nil && stored.DistanceNashMi != nil {
		p.DistanceNashMi = stored.DistanceNashMi
		p.Within30MinNash = stored.Within30MinNash
	}
	if p.DistanceMtJulietMi == nil && stored.DistanceMtJulietMi != nil {
		p.DistanceMtJulietMi = stored.DistanceMtJulietMi
		p.Within30MinMtJuliet = stored.Within30MinMtJuliet
	}
	if !p.CountyKnown() && stored.CountyKnown() {
		p.County = stored.County
	}

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&p.Street, stored.Street)
	fill(&p.Zip, stored.Zip)
	fill(&p.ParcelAPN, stored.ParcelAPN)
	fill(&p.AddressKey, stored.AddressKey)

	if p.Beds == nil {
		p.Beds = stored.Beds
	}
	if p.Baths == nil {
		p.Baths = stored.Baths
	}
	if p.Sqft == nil {
		p.Sqft = stored.Sqft
	}
	if p.LotSqft == nil {
		p.LotSqft = stored.LotSqft
	}
	if stored.DataConfidence > p.DataConfidence {
		p.DataConfidence = stored.DataConfidence
	}
}

// DetectChanges compares an incoming bundle with the stored one and returns
// the history to record: "created" for a new property, "sale_date_changed"
// when an event moves to a new date (same event, or a new event from a
// source that already had one), and "status_changed" when an event's status
// moves. Entry IDs derive from their content, so re-ingesting the same data
// records nothing new.
func DetectChanges(stored *model.Bundle, b model.Bundle, changedBy string, now time.Time) []model.HistoryEntry {
	pid := b.Property.ID
	entry := func(ct model.ChangeType, oldV, newV any) model.HistoryEntry {
		o := marshal(oldV)
		n := marshal(newV)
		return model.HistoryEntry{
			ID:         model.StableID("history", pid, string(ct), string(o), string(n)),
			PropertyID: pid,
			ChangeType: ct,
			OldValue:   o,
			NewValue:   n,
			ChangedBy:  changedBy,
			CreatedAt:  now,
		}
	}

	if stored == nil {
		created := map[string]string{}
		if len(b.Events) > 0 {
			created["source"] = b.Events[0].Source
			created["initial_sale_date"] = b.Events[0].DateString()
		}
		return []model.HistoryEntry{entry(model.ChangeCreated, nil, created)}
	}

	byID := make(map[string]model.DistressEvent, len(stored.Events))
	latest := make(map[string]model.DistressEvent)
	for _, e := range stored.Events {
		byID[e.ID] = e
		cur, ok := latest[e.Source]
		if !ok || after(e.EventDate, cur.EventDate) {
			latest[e.Source] = e
		}
	}

	var out []model.HistoryEntry
	for _, e := range b.Events {
		old, known := byID[e.ID]
		if !known {
			prev, ok := latest[e.Source]
			if ok && prev.EventDate != nil && e.EventDate != nil && !model.SameDate(prev.EventDate, e.EventDate) {
				out = append(out, entry(model.ChangeSaleDateChanged,
					map[string]string{"sale_date": prev.DateString()},
					map[string]string{"sale_date": e.DateString(), "event_id": e.ID},
				))
			}
			continue
		}
		if !model.SameDate(old.EventDate, e.EventDate) {
			out = append(out, entry(model.ChangeSaleDateChanged,
				map[string]string{"sale_date": old.DateString()},
				map[string]string{"sale_date": e.DateString(), "event_id": e.ID},
			))
		}
		if old.Status != e.Status {
			out = append(out, entry(model.ChangeStatusChanged,
				map[string]string{"status": string(old.Status)},
				map[string]string{"status": string(e.Status), "event_id": e.ID},
			))
		}
	}
	return out
}

func after(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	return b == nil || a.After(*b)
}

func marshal(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
