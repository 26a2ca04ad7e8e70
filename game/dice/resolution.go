package dice

// Difficulty targets for skill checks. Unrecognized difficulties fall
// back to normal.
const (
	TargetEasy   = 10
	TargetNormal = 15
	TargetHard   = 20
	TargetExpert = 25
)

var difficultyTargets = map[string]int{
	"easy":   TargetEasy,
	"normal": TargetNormal,
	"hard":   TargetHard,
	"expert": TargetExpert,
}

// TargetForDifficulty maps a difficulty name to its target number.
func TargetForDifficulty(difficulty string) int {
	if t, ok := difficultyTargets[difficulty]; ok {
		return t
	}
	return TargetNormal
}

var skillByAction = map[string]string{
	"investigate": "investigation",
	"interact":    "persuasion",
	"attack":      "athletics",
	"avoid":       "acrobatics",
	"search":      "perception",
	"observe":     "perception",
	"use_skill":   "arcana",
	"negotiate":   "persuasion",
	"stealth":     "stealth",
}

// InferSkill maps an action verb to the skill it tests when the
// action does not declare one. Unmatched verbs default to perception.
func InferSkill(actionType string) string {
	if s, ok := skillByAction[actionType]; ok {
		return s
	}
	return "perception"
}
