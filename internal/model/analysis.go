package model

import "time"

// Factor keys reported in ScoreResult.Factors.
const (
	FactorHasContact             = "hasContact"
	FactorInTargetCounty         = "inTargetCounty"
	FactorWithinDriveRadius      = "withinDriveRadius"
	FactorUrgencyDays            = "urgencyDays"
	FactorUrgencyBonus           = "urgencyBonus"
	FactorPropertyTypeMultiplier = "propertyTypeMultiplier"
	FactorDataConfidencePenalty  = "dataConfidencePenalty"
)

// Scoring versions reported in AnalysisMetadata.
const (
	ScoringVersion       = "v1.0"
	ScoringVersionLegacy = "v1.0-legacy"
)

// ScoreResult is the output of one scoring call.
type ScoreResult struct {
	Score           int                `json:"score"`
	Priority        Priority           `json:"priority"`
	Factors         map[string]float64 `json:"factors"`
	UrgencyDays     *int               `json:"urgencyDays"`
	Warnings        []string           `json:"warnings"`
	Recommendations []string           `json:"recommendations,omitempty"`
	Explanations    map[string]string  `json:"explanations,omitempty"`
}

// AIAnalysis is the narrative attached to an analysis.
type AIAnalysis struct {
	Summary            string   `json:"summary"`
	MarketInsights     []string `json:"marketInsights"`
	RiskFactors        []string `json:"riskFactors"`
	InvestmentStrategy string   `json:"investmentStrategy"`
	Model              string   `json:"model,omitempty"`
}

// AnalysisMetadata describes how an analysis was produced.
type AnalysisMetadata struct {
	AnalyzedAt     time.Time `json:"analyzedAt"`
	ScoringVersion string    `json:"scoringVersion"`
	AIEnabled      bool      `json:"aiEnabled"`
	RulesHash      string    `json:"rulesHash,omitempty"`
}

// AnalysisResponse is the scored view of one property.
type AnalysisResponse struct {
	Property   Property         `json:"property"`
	Score      ScoreResult      `json:"score"`
	AIAnalysis *AIAnalysis      `json:"aiAnalysis,omitempty"`
	Metadata   AnalysisMetadata `json:"metadata"`
}

// ScoreRecord is a persisted score snapshot.
type ScoreRecord struct {
	PropertyID     string             `json:"property_id"`
	Score          int                `json:"score"`
	Priority       Priority           `json:"priority"`
	Factors        map[string]float64 `json:"factors"`
	UrgencyDays    *int               `json:"urgency_days,omitempty"`
	RulesHash      string             `json:"rules_hash"`
	ScoringVersion string             `json:"scoring_version"`
	ScoredAt       time.Time          `json:"scored_at"`
}

// NewScoreRecord snapshots an analysis for persistence.
func NewScoreRecord(a *AnalysisResponse) ScoreRecord {
	return ScoreRecord{
		PropertyID:     a.Property.ID,
		Score:          a.Score.Score,
		Priority:       a.Score.Priority,
		Factors:        a.Score.Factors,
		UrgencyDays:    a.Score.UrgencyDays,
		RulesHash:      a.Metadata.RulesHash,
		ScoringVersion: a.Metadata.ScoringVersion,
		ScoredAt:       a.Metadata.AnalyzedAt,
	}
}
