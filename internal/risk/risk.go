// Package risk provides the advisory risk-scoring oracle for access
// requests. Scores are informational only: the approval lifecycle never
// reads them.
package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnavailable signals that the oracle could not produce a score. The
// caller must treat it as best-effort and never fail a decision over it.
var ErrUnavailable = errors.New("risk: assessor unavailable")

// Level buckets a numeric score for display.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Input carries the request attributes the oracle may inspect.
type Input struct {
	ApplicationName   string
	Justification     string
	RequiredApprovals int
	KnownApplication  bool
}

// Assessment is the oracle's advisory verdict.
type Assessment struct {
	Score      int                `json:"score"` // 0..100
	Level      Level              `json:"risk_level"`
	Reasoning  string             `json:"reasoning"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	AssessedAt time.Time          `json:"assessed_at"`
}

// Assessor is the pluggable scoring oracle.
type Assessor interface {
	Assess(ctx context.Context, in Input) (Assessment, error)
}

// Heuristic is the shipped deterministic assessor. It weighs approval-set
// breadth, catalog coverage, and justification quality.
type Heuristic struct {
	now func() time.Time
}

// NewHeuristic returns the default assessor.
func NewHeuristic() *Heuristic {
	return &Heuristic{now: time.Now}
}

func (h *Heuristic) Assess(ctx context.Context, in Input) (Assessment, error) {
	if err := ctx.Err(); err != nil {
		return Assessment{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	score := 10

	// Breadth of required sign-off tracks the sensitivity the catalog
	// assigned to the application.
	breadth := float64(in.RequiredApprovals)
	score += in.RequiredApprovals * 15

	catalogPenalty := 0.0
	if !in.KnownApplication {
		// Uncatalogued applications are routed to ADMIN and scored up.
		catalogPenalty = 30
		score += 30
	}

	justification := strings.TrimSpace(in.Justification)
	justPenalty := 0.0
	switch {
	case len(justification) == 0:
		justPenalty = 25
	case len(justification) < 20:
		justPenalty = 12
	}
	score += int(justPenalty)

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	a := Assessment{
		Score:     score,
		Level:     levelFor(score),
		Reasoning: reasoning(in, justification),
		Metrics: map[string]float64{
			"approval_breadth":      breadth,
			"catalog_penalty":       catalogPenalty,
			"justification_penalty": justPenalty,
		},
		AssessedAt: h.now().UTC(),
	}
	return a, nil
}

func levelFor(score int) Level {
	switch {
	case score >= 85:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 35:
		return LevelMedium
	default:
		return LevelLow
	}
}

func reasoning(in Input, justification string) string {
	var parts []string
	if in.KnownApplication {
		parts = append(parts, fmt.Sprintf("%s is catalogued with %d required approval role(s)", in.ApplicationName, in.RequiredApprovals))
	} else {
		parts = append(parts, fmt.Sprintf("%s is not in the application catalog and requires manual triage", in.ApplicationName))
	}
	if justification == "" {
		parts = append(parts, "no justification was supplied")
	} else if len(justification) < 20 {
		parts = append(parts, "justification is very short")
	}
	return strings.Join(parts, "; ")
}
