package dice

import (
	"testing"

	"github.com/fateforge/server/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqSource returns scripted values so success and failure branches
// can be pinned down exactly. Values are the desired die results minus
// one (Intn is zero-based).
type seqSource struct {
	values []int
	i      int
}

func (s *seqSource) Intn(n int) int {
	v := s.values[s.i%len(s.values)]
	s.i++
	return v % n
}

func fixedRoller(dieValues ...int) *Roller {
	zeroBased := make([]int, len(dieValues))
	for i, v := range dieValues {
		zeroBased[i] = v - 1
	}
	return NewRoller(&seqSource{values: zeroBased})
}

func TestParse_Valid(t *testing.T) {
	cases := []struct {
		expr string
		want Expression
	}{
		{"1d20", Expression{Count: 1, Faces: 20}},
		{"2d6", Expression{Count: 2, Faces: 6}},
		{"1d20+5", Expression{Count: 1, Faces: 20, Modifier: 5}},
		{"3d8-2", Expression{Count: 3, Faces: 8, Modifier: -2}},
		{"10d10+0", Expression{Count: 10, Faces: 10, Modifier: 0}},
	}
	for _, tc := range cases {
		got, err := Parse(tc.expr)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, expr := range []string{
		"", "d20", "1d", "1d20+", "2x6", "1d20 + 3", "-1d6", "0d6", "1d0", "1d20++3",
	} {
		_, err := Parse(expr)
		require.Error(t, err, expr)
		assert.True(t, apperr.Is(err, apperr.KindValidation), expr)
	}
}

func TestRoll_Bounds(t *testing.T) {
	r := NewRoller(nil)
	for i := 0; i < 1000; i++ {
		rolls := r.Roll(3, 6)
		require.Len(t, rolls, 3)
		for _, v := range rolls {
			assert.GreaterOrEqual(t, v, 1)
			assert.LessOrEqual(t, v, 6)
		}
	}
}

func TestEvaluate_TotalIncludesModifier(t *testing.T) {
	r := fixedRoller(4, 2)
	res, err := r.Evaluate("2d6+3", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2}, res.Rolls)
	assert.Equal(t, 9, res.Total)
	assert.Nil(t, res.Target)
	assert.Nil(t, res.Success)
}

func TestEvaluate_NegativeModifier(t *testing.T) {
	r := fixedRoller(5)
	res, err := r.Evaluate("1d20-3", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
}

func TestEvaluate_TargetSuccess(t *testing.T) {
	r := fixedRoller(15)
	target := 15
	res, err := r.Evaluate("1d20", &target)
	require.NoError(t, err)
	require.NotNil(t, res.Success)
	assert.True(t, *res.Success, "meeting the target exactly succeeds")
	assert.Equal(t, 15, *res.Target)
}

func TestEvaluate_TargetFailure(t *testing.T) {
	r := fixedRoller(14)
	target := 15
	res, err := r.Evaluate("1d20", &target)
	require.NoError(t, err)
	require.NotNil(t, res.Success)
	assert.False(t, *res.Success)
}

func TestEvaluate_InvalidExpression(t *testing.T) {
	r := NewRoller(nil)
	_, err := r.Evaluate("nonsense", nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestTargetForDifficulty(t *testing.T) {
	assert.Equal(t, TargetEasy, TargetForDifficulty("easy"))
	assert.Equal(t, TargetNormal, TargetForDifficulty("normal"))
	assert.Equal(t, TargetHard, TargetForDifficulty("hard"))
	assert.Equal(t, TargetExpert, TargetForDifficulty("expert"))
	assert.Equal(t, TargetNormal, TargetForDifficulty(""))
	assert.Equal(t, TargetNormal, TargetForDifficulty("impossible"))
}

func TestInferSkill(t *testing.T) {
	assert.Equal(t, "investigation", InferSkill("investigate"))
	assert.Equal(t, "persuasion", InferSkill("interact"))
	assert.Equal(t, "athletics", InferSkill("attack"))
	assert.Equal(t, "acrobatics", InferSkill("avoid"))
	assert.Equal(t, "perception", InferSkill("search"))
	assert.Equal(t, "perception", InferSkill("observe"))
	assert.Equal(t, "arcana", InferSkill("use_skill"))
	assert.Equal(t, "persuasion", InferSkill("negotiate"))
	assert.Equal(t, "stealth", InferSkill("stealth"))
	assert.Equal(t, "perception", InferSkill("dance"))
}
