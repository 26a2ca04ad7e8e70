package dice

import (
	"math/rand"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/fateforge/server/apperr"
)

var exprPattern = regexp.MustCompile(`^(\d+)d(\d+)([+-]\d+)?$`)

// Expression is a parsed dice expression: <count>d<faces>[+/-modifier].
type Expression struct {
	Count    int
	Faces    int
	Modifier int
}

// Result is one evaluated expression. Total = sum(Rolls) + Modifier.
type Result struct {
	Expression Expression
	Rolls      []int
	Total      int
	Target     *int
	Success    *bool
}

// Source supplies uniform random integers. Substitutable with a
// deterministic source in tests so success/failure branches can be
// exercised exhaustively.
type Source interface {
	// Intn returns a uniform integer in [0, n).
	Intn(n int) int
}

// lockedSource wraps math/rand for concurrent use across sessions.
type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// NewSource returns a time-seeded random source safe for concurrent use.
func NewSource() Source {
	return &lockedSource{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Roller parses and evaluates dice expressions.
type Roller struct {
	src Source
}

// NewRoller creates a Roller using the given random source.
// A nil source falls back to a time-seeded one.
func NewRoller(src Source) *Roller {
	if src == nil {
		src = NewSource()
	}
	return &Roller{src: src}
}

// Parse validates and decomposes a dice expression.
func Parse(expr string) (Expression, error) {
	m := exprPattern.FindStringSubmatch(expr)
	if m == nil {
		return Expression{}, apperr.Validation("expression", "invalid dice expression: "+expr)
	}
	count, err := strconv.Atoi(m[1])
	if err != nil || count < 1 {
		return Expression{}, apperr.Validation("expression", "invalid dice count: "+expr)
	}
	faces, err := strconv.Atoi(m[2])
	if err != nil || faces < 1 {
		return Expression{}, apperr.Validation("expression", "invalid dice faces: "+expr)
	}
	modifier := 0
	if m[3] != "" {
		modifier, _ = strconv.Atoi(m[3])
	}
	return Expression{Count: count, Faces: faces, Modifier: modifier}, nil
}

// Roll produces count independent uniform integers in [1, faces].
func (r *Roller) Roll(count, faces int) []int {
	rolls := make([]int, count)
	for i := range rolls {
		rolls[i] = r.src.Intn(faces) + 1
	}
	return rolls
}

// Evaluate parses expr, rolls it, and sums with the modifier. If
// target is non-nil, Success = Total >= *target. Callers never roll
// and sum manually, so displayed and logged values cannot drift.
func (r *Roller) Evaluate(expr string, target *int) (*Result, error) {
	parsed, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	rolls := r.Roll(parsed.Count, parsed.Faces)
	total := parsed.Modifier
	for _, v := range rolls {
		total += v
	}
	res := &Result{Expression: parsed, Rolls: rolls, Total: total}
	if target != nil {
		t := *target
		ok := total >= t
		res.Target = &t
		res.Success = &ok
	}
	return res, nil
}
