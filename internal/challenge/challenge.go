package challenge

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"smartalarm/internal/model"
)

var operations = []string{"+", "-", "*"}

// Engine generates and validates dismissal challenges. The random source
// is injected so generation is reproducible in tests.
type Engine struct {
	rnd *rand.Rand
}

func NewEngine(rnd *rand.Rand) *Engine {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{rnd: rnd}
}

// GenerateMath produces difficulty problems with operands in [1,50].
// Subtraction may go negative; answers are never clamped.
func (e *Engine) GenerateMath(alarmID string, difficulty int) *model.MathSession {
	if difficulty < 1 {
		difficulty = 1
	}
	problems := make([]model.MathProblem, 0, difficulty)
	for i := 0; i < difficulty; i++ {
		a := e.rnd.Intn(50) + 1
		b := e.rnd.Intn(50) + 1
		op := operations[e.rnd.Intn(len(operations))]
		var answer int
		switch op {
		case "+":
			answer = a + b
		case "-":
			answer = a - b
		case "*":
			answer = a * b
		}
		problems = append(problems, model.MathProblem{
			Question: fmt.Sprintf("%d %s %d", a, op, b),
			Answer:   answer,
		})
	}
	return &model.MathSession{AlarmID: alarmID, Problems: problems}
}

// NewShake copies the alarm's difficulty as the required count.
func (e *Engine) NewShake(alarmID string, difficulty int) *model.ShakeSession {
	return &model.ShakeSession{AlarmID: alarmID, Required: difficulty}
}

// UpdateAnswer replaces the user answer at index. The text is not
// validated here; non-numeric input is allowed until check time.
func UpdateAnswer(sess *model.MathSession, index int, text string) error {
	if sess == nil || index < 0 || index >= len(sess.Problems) {
		return model.Errorf(model.ErrInvalid, "answer index %d out of range", index)
	}
	sess.Problems[index].UserAnswer = text
	return nil
}

// CheckAllAnswers reports whether every user answer parses to exactly the
// expected integer. Empty or non-numeric answers fail. Session state is
// left untouched so a failed check can be retried.
func CheckAllAnswers(sess *model.MathSession) bool {
	if sess == nil || len(sess.Problems) == 0 {
		return false
	}
	for _, p := range sess.Problems {
		n, err := strconv.Atoi(strings.TrimSpace(p.UserAnswer))
		if err != nil || n != p.Answer {
			return false
		}
	}
	return true
}

// AllAnswersFilled reports whether every problem has a non-blank answer.
func AllAnswersFilled(sess *model.MathSession) bool {
	if sess == nil {
		return false
	}
	for _, p := range sess.Problems {
		if strings.TrimSpace(p.UserAnswer) == "" {
			return false
		}
	}
	return true
}

// Hint rewrites a problem as a prompt, with multiplication shown as the
// multiplication sign.
func Hint(p model.MathProblem) string {
	q := strings.Replace(p.Question, "*", "×", 1)
	return fmt.Sprintf("Hint: %s = ?", q)
}

// IsShakeComplete reports whether the shake requirement is met. A zero or
// negative requirement is never complete, so an uninitialized session can't
// dismiss an alarm.
func IsShakeComplete(current, required int) bool {
	if required <= 0 {
		return false
	}
	return current >= required
}

// ShakeProgress returns completion as a percentage capped at 100.
func ShakeProgress(current, required int) float64 {
	if required <= 0 {
		return 0
	}
	pct := float64(current) / float64(required) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
