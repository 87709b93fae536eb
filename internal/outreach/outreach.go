// Package outreach mirrors scored properties into the Notion outreach
// database so the acquisitions team works from one list. Pages are keyed by
// property ID: an existing page is updated in place, otherwise one is
// created with status "New".
package outreach

import (
	"context"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/resilience"
	"github.com/sells-group/property-scorer/pkg/notion"
)

// Outreach database column names.
const (
	ColAddress     = "Address"
	ColPropertyID  = "Property ID"
	ColCounty      = "County"
	ColCity        = "City"
	ColScore       = "Score"
	ColPriority    = "Priority"
	ColUrgencyDays = "Urgency Days"
	ColSaleDate    = "Sale Date"
	ColWithinDrive = "Within 30 Min"
	ColHasContact  = "Has Contact"
	ColSummary     = "Summary"
	ColRulesHash   = "Rules Hash"
	ColScoredAt    = "Scored At"
	ColStatus      = "Status"
)

// StatusNew is the workflow status given to newly pushed pages.
const StatusNew = "New"

// Stats summarizes one push.
type Stats struct {
	Considered int `json:"considered"`
	Skipped    int `json:"skipped"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Failed     int `json:"failed"`
}

// Pusher writes analyses to the outreach database.
type Pusher struct {
	client      notion.Client
	dbID        string
	minPriority model.Priority
}

// NewPusher creates a Pusher for analyses at or above minPriority.
func NewPusher(client notion.Client, dbID string, minPriority model.Priority) *Pusher {
	if minPriority == "" {
		minPriority = model.PriorityHigh
	}
	return &Pusher{client: client, dbID: dbID, minPriority: minPriority}
}

// Push upserts one page per qualifying analysis. Per-property failures are
// logged and counted; only a cancelled context aborts the push.
func (p *Pusher) Push(ctx context.Context, analyses []model.AnalysisResponse) (Stats, error) {
	var st Stats
	for _, a := range analyses {
		if err := ctx.Err(); err != nil {
			return st, eris.Wrap(err, "outreach: cancelled")
		}
		st.Considered++
		if a.Score.Priority.Rank() < p.minPriority.Rank() {
			st.Skipped++
			continue
		}
		created, err := p.upsert(ctx, a)
		switch {
		case err != nil:
			st.Failed++
			zap.L().Warn("outreach: push failed",
				zap.String("property_id", a.Property.ID),
				zap.String("error_type", resilience.ClassifyError(err)),
				zap.Error(err),
			)
		case created:
			st.Created++
		default:
			st.Updated++
		}
	}

	zap.L().Info("outreach: push complete",
		zap.Int("considered", st.Considered),
		zap.Int("created", st.Created),
		zap.Int("updated", st.Updated),
		zap.Int("skipped", st.Skipped),
		zap.Int("failed", st.Failed),
	)
	return st, nil
}

func (p *Pusher) upsert(ctx context.Context, a model.AnalysisResponse) (bool, error) {
	key := notion.Keyed{DatabaseID: p.dbID, Column: ColPropertyID, Value: a.Property.ID}
	created, err := notion.Upsert(ctx, p.client, key, Properties(a), notionapi.Properties{
		ColStatus: notion.Status(StatusNew),
	})
	return created, eris.Wrap(err, "outreach: upsert")
}

// Properties maps an analysis onto outreach columns. Status is left to the
// team once a page exists.
func Properties(a model.AnalysisResponse) notionapi.Properties {
	prop := a.Property
	props := notionapi.Properties{
		ColAddress:     notion.Title(prop.FullAddress),
		ColPropertyID:  notion.Text(prop.ID),
		ColCity:        notion.Text(prop.City),
		ColScore:       notion.Number(float64(a.Score.Score)),
		ColPriority:    notion.Select(string(a.Score.Priority)),
		ColWithinDrive: notion.Checkbox(prop.Within30MinNash || prop.Within30MinMtJuliet),
		ColHasContact:  notion.Checkbox(a.Score.Factors[model.FactorHasContact] > 0),
		ColRulesHash:   notion.Text(a.Metadata.RulesHash),
	}
	if prop.County != "" {
		props[ColCounty] = notion.Select(prop.County)
	}
	if d := a.Score.UrgencyDays; d != nil {
		props[ColUrgencyDays] = notion.Number(float64(*d))
		props[ColSaleDate] = notion.Date(saleDate(a.Metadata.AnalyzedAt, *d))
	}
	if !a.Metadata.AnalyzedAt.IsZero() {
		props[ColScoredAt] = notion.Date(a.Metadata.AnalyzedAt)
	}
	if s := summary(a); s != "" {
		props[ColSummary] = notion.Text(s)
	}
	return props
}

// saleDate recovers the sale day from the analysis time and the urgency
// days counted from it.
func saleDate(analyzedAt time.Time, days int) time.Time {
	y, m, d := analyzedAt.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
}

func summary(a model.AnalysisResponse) string {
	if a.AIAnalysis != nil && a.AIAnalysis.Summary != "" {
		return a.AIAnalysis.Summary
	}
	return strings.Join(a.Score.Recommendations, " ")
}
