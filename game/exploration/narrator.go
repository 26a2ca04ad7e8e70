package exploration

import (
	"context"
	"fmt"
)

// NarrationContext carries everything a narration generator needs to
// frame a scene or describe an outcome.
type NarrationContext struct {
	CharacterName string
	EntityName    string
	EntityType    string
	DangerLevel   string
	ActionType    string
	Description   string // custom action description, may be empty
	Approach      string // player-supplied approach text
	SkillType     string
	Success       bool
	Total         int
	Target        int
}

// Narrator produces the two narration texts of an exploration
// exchange. The engine depends only on this interface; the template
// implementation below stands in for a real narrative-generation
// service.
type Narrator interface {
	// DescribeInitialApproach frames the scene and the risk level of
	// the chosen action, before the player commits to an approach.
	DescribeInitialApproach(ctx context.Context, nc NarrationContext) (string, error)
	// DescribeOutcome narrates the result of the resolved skill check.
	DescribeOutcome(ctx context.Context, nc NarrationContext) (string, error)
}

// TemplateNarrator renders narration from fixed templates.
type TemplateNarrator struct{}

var riskFlavor = map[string]string{
	"none":      "It looks harmless enough.",
	"low":       "Something about it suggests mild caution.",
	"medium":    "A careful adventurer would stay alert here.",
	"high":      "Every instinct warns that this is dangerous.",
	"dangerous": "Dread hangs in the air; one wrong move could be the last.",
}

var successFlavor = map[string]string{
	"investigate": "%s examines the %s closely and uncovers details others would have missed.",
	"interact":    "%s reaches out, and the %s responds just as hoped.",
	"search":      "%s searches thoroughly, and the %s gives up what it was hiding.",
	"observe":     "Patient watching pays off: %s notices exactly what matters about the %s.",
}

// DescribeInitialApproach frames the scene for the chosen action.
func (TemplateNarrator) DescribeInitialApproach(_ context.Context, nc NarrationContext) (string, error) {
	risk, ok := riskFlavor[nc.DangerLevel]
	if !ok {
		risk = riskFlavor["none"]
	}
	base := fmt.Sprintf("%s approaches the %s, preparing to %s.",
		nc.CharacterName, nc.EntityName, actionVerb(nc))
	return base + " " + risk + " How do you proceed?", nil
}

// DescribeOutcome narrates success per action type; all failures share
// the same generic flavor.
func (TemplateNarrator) DescribeOutcome(_ context.Context, nc NarrationContext) (string, error) {
	if !nc.Success {
		return fmt.Sprintf("Despite %s's efforts, the %s yields nothing this time. Perhaps another approach would fare better.",
			nc.CharacterName, nc.EntityName), nil
	}
	tpl, ok := successFlavor[nc.ActionType]
	if !ok {
		tpl = "%s succeeds, and the %s gives up one of its secrets."
	}
	return fmt.Sprintf(tpl, nc.CharacterName, nc.EntityName), nil
}

func actionVerb(nc NarrationContext) string {
	if nc.Description != "" {
		return nc.Description
	}
	return nc.ActionType
}
