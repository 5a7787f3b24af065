package challenge

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"smartalarm/internal/model"
)

func testEngine() *Engine {
	return NewEngine(rand.New(rand.NewSource(1)))
}

func TestGenerateMath(t *testing.T) {
	eng := testEngine()
	sess := eng.GenerateMath("a1", 5)
	if len(sess.Problems) != 5 {
		t.Fatalf("got %d problems, want 5", len(sess.Problems))
	}
	for _, p := range sess.Problems {
		parts := strings.Split(p.Question, " ")
		if len(parts) != 3 {
			t.Fatalf("malformed question %q", p.Question)
		}
		a, err1 := strconv.Atoi(parts[0])
		b, err2 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil {
			t.Fatalf("non-numeric operands in %q", p.Question)
		}
		if a < 1 || a > 50 || b < 1 || b > 50 {
			t.Errorf("operand out of [1,50] in %q", p.Question)
		}
		var want int
		switch parts[1] {
		case "+":
			want = a + b
		case "-":
			want = a - b
		case "*":
			want = a * b
		default:
			t.Fatalf("unknown operator in %q", p.Question)
		}
		if p.Answer != want {
			t.Errorf("answer for %q = %d, want %d", p.Question, p.Answer, want)
		}
		if p.UserAnswer != "" {
			t.Errorf("user answer should start empty")
		}
	}
}

func TestGenerateMathMinimumOneProblem(t *testing.T) {
	sess := testEngine().GenerateMath("a1", 0)
	if len(sess.Problems) != 1 {
		t.Fatalf("got %d problems, want 1", len(sess.Problems))
	}
}

func TestCheckAllAnswers(t *testing.T) {
	sess := &model.MathSession{
		AlarmID: "a1",
		Problems: []model.MathProblem{
			{Question: "2 + 3", Answer: 5},
			{Question: "10 - 12", Answer: -2},
		},
	}

	if CheckAllAnswers(sess) {
		t.Error("empty answers should fail")
	}

	if err := UpdateAnswer(sess, 0, "5"); err != nil {
		t.Fatal(err)
	}
	if CheckAllAnswers(sess) {
		t.Error("one missing answer should fail the whole set")
	}

	if err := UpdateAnswer(sess, 1, "abc"); err != nil {
		t.Fatal(err)
	}
	if CheckAllAnswers(sess) {
		t.Error("non-numeric answer should fail")
	}
	if sess.Problems[0].UserAnswer != "5" {
		t.Error("failed check must not clear typed answers")
	}

	if err := UpdateAnswer(sess, 1, "-2"); err != nil {
		t.Fatal(err)
	}
	if !CheckAllAnswers(sess) {
		t.Error("all correct answers should pass")
	}
}

func TestCheckAllAnswersTrimsWhitespace(t *testing.T) {
	sess := &model.MathSession{
		Problems: []model.MathProblem{{Question: "2 + 2", Answer: 4, UserAnswer: " 4 "}},
	}
	if !CheckAllAnswers(sess) {
		t.Error("padded numeric answer should pass")
	}
}

func TestUpdateAnswerOutOfRange(t *testing.T) {
	sess := &model.MathSession{Problems: []model.MathProblem{{Answer: 1}}}
	if err := UpdateAnswer(sess, 1, "x"); model.ErrorCode(err) != model.ErrInvalid {
		t.Errorf("expected invalid_input, got %v", err)
	}
	if err := UpdateAnswer(sess, -1, "x"); model.ErrorCode(err) != model.ErrInvalid {
		t.Errorf("expected invalid_input, got %v", err)
	}
}

func TestAllAnswersFilled(t *testing.T) {
	sess := &model.MathSession{
		Problems: []model.MathProblem{
			{UserAnswer: "3"},
			{UserAnswer: "  "},
		},
	}
	if AllAnswersFilled(sess) {
		t.Error("blank answer should count as unfilled")
	}
	sess.Problems[1].UserAnswer = "7"
	if !AllAnswersFilled(sess) {
		t.Error("all filled answers should pass")
	}
}

func TestIsShakeComplete(t *testing.T) {
	tests := []struct {
		current, required int
		want              bool
	}{
		{0, 0, false},
		{5, 0, false},
		{4, 5, false},
		{5, 5, true},
		{6, 5, true},
	}
	for _, tt := range tests {
		if got := IsShakeComplete(tt.current, tt.required); got != tt.want {
			t.Errorf("IsShakeComplete(%d, %d) = %v, want %v", tt.current, tt.required, got, tt.want)
		}
	}
}

func TestShakeProgress(t *testing.T) {
	if got := ShakeProgress(2, 4); got != 50 {
		t.Errorf("ShakeProgress(2, 4) = %v, want 50", got)
	}
	if got := ShakeProgress(10, 4); got != 100 {
		t.Errorf("ShakeProgress(10, 4) = %v, want 100", got)
	}
	if got := ShakeProgress(1, 0); got != 0 {
		t.Errorf("ShakeProgress(1, 0) = %v, want 0", got)
	}
}

func TestHint(t *testing.T) {
	p := model.MathProblem{Question: "3 * 4", Answer: 12}
	if got := Hint(p); got != "Hint: 3 × 4 = ?" {
		t.Errorf("Hint = %q", got)
	}
}
