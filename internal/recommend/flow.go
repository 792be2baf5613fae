package recommend

import (
	"context"
	"errors"
	"fmt"

	"github.com/terra-clan/coaching-engine/internal/models"
	"github.com/terra-clan/coaching-engine/internal/pacing"
)

var (
	ErrAnswerRequired     = errors.New("answer required before continuing")
	ErrNoPreviousQuestion = errors.New("already at the first question")
	ErrQuizComplete       = errors.New("quiz is already complete")
	ErrQuizNotComplete    = errors.New("quiz is not complete")
	ErrQuizCalculating    = errors.New("quiz results are being calculated")
	ErrUnknownQuestion    = errors.New("unknown question")
	ErrInvalidOption      = errors.New("invalid option")
)

// Flow drives the question-by-question quiz over a QuizProgress.
// A Flow is not safe for concurrent use; the session manager serializes access.
type Flow struct {
	engine   *Engine
	progress *models.QuizProgress
	delay    pacing.Delayer
}

// NewFlow attaches the state machine to existing progress
func NewFlow(engine *Engine, progress *models.QuizProgress, delay pacing.Delayer) *Flow {
	if delay == nil {
		delay = pacing.None()
	}
	if progress.Status == "" {
		progress.Status = models.QuizAnswering
	}
	if progress.Answers == nil {
		progress.Answers = make(models.AnswerSet)
	}

	f := &Flow{engine: engine, progress: progress, delay: delay}

	// Questions can change between catalog reloads
	if total := len(engine.Questions()); progress.Index >= total && total > 0 {
		progress.Index = total - 1
	}
	if progress.Index < 0 {
		progress.Index = 0
	}
	return f
}

// Status returns the current state
func (f *Flow) Status() models.QuizStatus {
	return f.progress.Status
}

// Current returns the question being answered (nil once the quiz has left the answering state)
func (f *Flow) Current() *models.Question {
	if f.progress.Status != models.QuizAnswering {
		return nil
	}
	questions := f.engine.Questions()
	if len(questions) == 0 {
		return nil
	}
	return &questions[f.progress.Index]
}

// Answer records the answer for the current question. An empty questionID targets
// the current question; an empty answer clears it.
func (f *Flow) Answer(questionID string, answer models.Answer) error {
	if err := f.requireAnswering(); err != nil {
		return err
	}

	q := f.Current()
	if q == nil {
		return ErrUnknownQuestion
	}
	if questionID != "" && questionID != q.ID {
		if _, ok := f.question(questionID); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
		}
		return fmt.Errorf("%w: %s is not the current question", ErrUnknownQuestion, questionID)
	}

	values, err := normalizeAnswer(q, answer)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		delete(f.progress.Answers, q.ID)
		return nil
	}

	f.progress.Answers[q.ID] = models.Answer{Values: values}
	return nil
}

// Next advances to the following question. On the last question it moves through
// Calculating to Complete, waiting for the pacing delay before scoring.
func (f *Flow) Next(ctx context.Context) error {
	if err := f.requireAnswering(); err != nil {
		return err
	}

	q := f.Current()
	if q == nil {
		return ErrUnknownQuestion
	}
	if answer, ok := f.progress.Answers[q.ID]; !ok || answer.Empty() {
		return fmt.Errorf("%w: %s", ErrAnswerRequired, q.ID)
	}

	if f.progress.Index < len(f.engine.Questions())-1 {
		f.progress.Index++
		return nil
	}

	f.progress.Status = models.QuizCalculating
	if err := f.delay.Wait(ctx); err != nil {
		f.progress.Status = models.QuizAnswering
		return fmt.Errorf("scoring interrupted: %w", err)
	}

	f.progress.Results = f.engine.Score(f.progress.Answers)
	f.progress.Status = models.QuizComplete
	return nil
}

// Previous returns to the preceding question, keeping recorded answers
func (f *Flow) Previous() error {
	if err := f.requireAnswering(); err != nil {
		return err
	}
	if f.progress.Index == 0 {
		return ErrNoPreviousQuestion
	}
	f.progress.Index--
	return nil
}

// Retake clears the answers and restarts from the first question
func (f *Flow) Retake() error {
	if f.progress.Status != models.QuizComplete {
		return ErrQuizNotComplete
	}
	*f.progress = models.NewQuizProgress()
	return nil
}

// Results returns the ranked recommendations of a completed quiz
func (f *Flow) Results() ([]models.Recommendation, error) {
	if f.progress.Status != models.QuizComplete {
		return nil, ErrQuizNotComplete
	}
	return f.progress.Results, nil
}

// View renders the state for clients
func (f *Flow) View() models.QuizView {
	total := len(f.engine.Questions())
	view := models.QuizView{
		Status:     f.progress.Status,
		TotalSteps: total,
	}

	switch f.progress.Status {
	case models.QuizComplete:
		view.CurrentStep = total
		view.Results = f.progress.Results
		if view.Results == nil {
			view.Results = []models.Recommendation{}
		}
	case models.QuizCalculating:
		view.CurrentStep = total
	default:
		if q := f.Current(); q != nil {
			view.CurrentStep = f.progress.Index + 1
			view.Question = q
			if answer, ok := f.progress.Answers[q.ID]; ok {
				a := answer
				view.Answer = &a
			}
			view.CanGoBack = f.progress.Index > 0
		}
	}
	return view
}

func (f *Flow) requireAnswering() error {
	switch f.progress.Status {
	case models.QuizComplete:
		return ErrQuizComplete
	case models.QuizCalculating:
		return ErrQuizCalculating
	}
	return nil
}

func (f *Flow) question(id string) (*models.Question, bool) {
	questions := f.engine.Questions()
	for i := range questions {
		if questions[i].ID == id {
			return &questions[i], true
		}
	}
	return nil, false
}

// normalizeAnswer checks tokens against the question's options and its cardinality.
// Blank and repeated tokens are dropped.
func normalizeAnswer(q *models.Question, answer models.Answer) ([]string, error) {
	values := make([]string, 0, len(answer.Values))
	seen := make(map[string]bool, len(answer.Values))
	for _, v := range answer.Values {
		if v == "" || seen[v] {
			continue
		}
		if _, ok := q.Option(v); !ok {
			return nil, fmt.Errorf("%w: %q for question %s", ErrInvalidOption, v, q.ID)
		}
		seen[v] = true
		values = append(values, v)
	}

	if q.Cardinality == models.SingleChoice && len(values) > 1 {
		return nil, fmt.Errorf("%w: question %s accepts a single value", ErrInvalidOption, q.ID)
	}
	return values, nil
}
