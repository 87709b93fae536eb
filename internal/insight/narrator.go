package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/pkg/anthropic"
)

// DefaultTimeout bounds one summary call.
const DefaultTimeout = 20 * time.Second

const defaultMaxTokens = 512

const systemPrompt = `You are an acquisitions analyst for a real-estate investor who buys distressed residential properties around Nashville, Tennessee.
You receive one property as JSON: its address, county, drive-radius flags, property type, distress events, and a deterministic score with factors and warnings.
Write a summary of two to four sentences for the acquisitions team. State the opportunity, the timeline, and the main risk.
Do not restate the score breakdown, do not invent facts that are not in the JSON, and answer with plain text only.`

// Narrator produces AIAnalysis values. Without an LLM client it returns the
// template narrative only.
type Narrator struct {
	ai        anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// Option configures a Narrator.
type Option func(*Narrator)

// WithLLM enables LLM summaries through ai.
func WithLLM(ai anthropic.Client, model string, maxTokens int) Option {
	return func(n *Narrator) {
		n.ai = ai
		if model != "" {
			n.model = model
		}
		if maxTokens > 0 {
			n.maxTokens = int64(maxTokens)
		}
	}
}

// WithTimeout bounds each summary call.
func WithTimeout(d time.Duration) Option {
	return func(n *Narrator) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// NewNarrator creates a Narrator.
func NewNarrator(opts ...Option) *Narrator {
	n := &Narrator{
		model:     anthropic.DefaultModel,
		maxTokens: defaultMaxTokens,
		timeout:   DefaultTimeout,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// LLMEnabled reports whether summaries are written by the LLM.
func (n *Narrator) LLMEnabled() bool { return n != nil && n.ai != nil }

// Narrate returns the narrative for one analysis. An LLM failure keeps the
// template summary; it is logged, never returned.
func (n *Narrator) Narrate(ctx context.Context, a *model.AnalysisResponse, events []model.DistressEvent) *model.AIAnalysis {
	out := Template(a.Property, a.Score)
	if !n.LLMEnabled() {
		return &out
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := n.request(a, events)
	if err != nil {
		zap.L().Warn("insight: build prompt failed", zap.String("property_id", a.Property.ID), zap.Error(err))
		return &out
	}
	resp, err := n.ai.CreateMessage(ctx, req)
	if err != nil {
		zap.L().Warn("insight: llm summary failed, using template",
			zap.String("property_id", a.Property.ID),
			zap.Error(err),
		)
		return &out
	}
	resp.Usage.LogCost(n.model, "summary", false)

	if text := resp.Text(); text != "" {
		out.Summary = text
		out.Model = resp.Model
		if out.Model == "" {
			out.Model = n.model
		}
	}
	return &out
}

// BatchInput pairs an analysis with the events it was scored from.
type BatchInput struct {
	Analysis *model.AnalysisResponse
	Events   []model.DistressEvent
}

// NarrateBatch sets the narrative on every analysis. With an LLM client the
// summaries are requested through one message batch; items that fail keep
// the template summary. Only batch-level API errors are returned, and the
// template narratives are in place even then.
func (n *Narrator) NarrateBatch(ctx context.Context, items []BatchInput, opts ...anthropic.PollOption) error {
	byID := make(map[string]*model.AIAnalysis, len(items))
	reqs := make([]anthropic.BatchRequestItem, 0, len(items))
	for _, it := range items {
		a := it.Analysis
		tmpl := Template(a.Property, a.Score)
		a.AIAnalysis = &tmpl
		if !n.LLMEnabled() {
			continue
		}
		req, err := n.request(a, it.Events)
		if err != nil {
			zap.L().Warn("insight: build prompt failed", zap.String("property_id", a.Property.ID), zap.Error(err))
			continue
		}
		id := customID(a.Property.ID)
		byID[id] = a.AIAnalysis
		reqs = append(reqs, anthropic.BatchRequestItem{CustomID: id, Params: req})
	}
	if len(reqs) == 0 {
		return nil
	}

	batch, err := n.ai.CreateBatch(ctx, anthropic.BatchRequest{Requests: reqs})
	if err != nil {
		return eris.Wrap(err, "insight: submit summaries")
	}
	zap.L().Info("insight: summary batch submitted", zap.String("batch_id", batch.ID), zap.Int("requests", len(reqs)))

	if _, err := anthropic.PollBatch(ctx, n.ai, batch.ID, opts...); err != nil {
		return eris.Wrap(err, "insight: wait for summaries")
	}
	iter, err := n.ai.GetBatchResults(ctx, batch.ID)
	if err != nil {
		return eris.Wrap(err, "insight: fetch summaries")
	}
	res, err := anthropic.CollectResults(iter)
	if err != nil {
		return eris.Wrap(err, "insight: read summaries")
	}
	res.Usage.LogCost(n.model, "summary", true)

	for id, msg := range res.Succeeded {
		target, ok := byID[id]
		if !ok {
			continue
		}
		if text := msg.Text(); text != "" {
			target.Summary = text
			target.Model = n.model
		}
	}
	return nil
}

// customID maps a property ID to the batch custom_id alphabet
// (letters, digits, "_" and "-", at most 64 chars).
func customID(propertyID string) string {
	var b strings.Builder
	for _, r := range propertyID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	id := "p-" + b.String()
	if len(id) > 64 {
		id = id[:64]
	}
	return id
}

type promptFacts struct {
	Address         string             `json:"address"`
	County          string             `json:"county"`
	PropertyType    string             `json:"property_type"`
	WithinNashville bool               `json:"within_drive_nashville"`
	WithinMtJuliet  bool               `json:"within_drive_mt_juliet"`
	DistanceNashMi  *float64           `json:"distance_nashville_mi,omitempty"`
	Events          []promptEvent      `json:"events"`
	Score           int                `json:"score"`
	Priority        model.Priority     `json:"priority"`
	UrgencyDays     *int               `json:"urgency_days,omitempty"`
	Factors         map[string]float64 `json:"factors"`
	Warnings        []string           `json:"warnings,omitempty"`
}

type promptEvent struct {
	Type   model.EventType   `json:"type"`
	Date   string            `json:"date,omitempty"`
	Status model.EventStatus `json:"status"`
	Firm   string            `json:"firm,omitempty"`
}

func (n *Narrator) request(a *model.AnalysisResponse, events []model.DistressEvent) (anthropic.MessageRequest, error) {
	p := a.Property
	facts := promptFacts{
		Address:         p.FullAddress,
		County:          p.County,
		PropertyType:    string(p.PropertyType),
		WithinNashville: p.Within30MinNash,
		WithinMtJuliet:  p.Within30MinMtJuliet,
		DistanceNashMi:  p.DistanceNashMi,
		Score:           a.Score.Score,
		Priority:        a.Score.Priority,
		UrgencyDays:     a.Score.UrgencyDays,
		Factors:         a.Score.Factors,
		Warnings:        a.Score.Warnings,
	}
	for _, e := range events {
		facts.Events = append(facts.Events, promptEvent{Type: e.EventType, Date: e.DateString(), Status: e.Status, Firm: e.Firm})
	}
	data, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return anthropic.MessageRequest{}, eris.Wrap(err, "insight: marshal facts")
	}

	return anthropic.MessageRequest{
		Model:     n.model,
		MaxTokens: n.maxTokens,
		System:    anthropic.CachedSystem(systemPrompt),
		Messages:  anthropic.UserMessage(fmt.Sprintf("Property:\n%s", data)),
	}, nil
}
