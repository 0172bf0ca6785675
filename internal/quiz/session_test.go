package quiz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu       sync.Mutex
	prior    []Attempt
	saved    map[string]Attempt
	saves    int
	saveErr  error
	listErr  error
	released chan struct{}
}

func newFakeRepo(prior ...Attempt) *fakeRepo {
	return &fakeRepo{prior: prior, saved: map[string]Attempt{}}
}

func (r *fakeRepo) SaveAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	if r.released != nil {
		<-r.released
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return Attempt{}, r.saveErr
	}
	r.saved[a.ID] = a
	return a, nil
}

func (r *fakeRepo) ListAttemptsByAssessment(ctx context.Context, assessmentID string) ([]Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := append([]Attempt(nil), r.prior...)
	for _, a := range r.saved {
		out = append(out, a)
	}
	return out, nil
}

func (r *fakeRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func twoChoiceAssessment() Assessment {
	return Assessment{
		ID:              "quiz-1",
		Title:           "Unit 1",
		CourseID:        "course-1",
		DurationMinutes: 1,
		Questions:       []Question{choice("q1", "B", 5), choice("q2", "B", 5)},
	}
}

// 计时间隔设为一小时，测试中手动驱动 tick
func manualSession(t *testing.T, repo Repository, opts ...SessionOption) *Session {
	t.Helper()
	opts = append([]SessionOption{WithTimerOptions(WithTickInterval(time.Hour))}, opts...)
	return NewSession(repo, opts...)
}

func waitPersisted(t *testing.T, s *Session) PersistStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := s.WaitPersisted(ctx)
	require.NoError(t, err)
	return st
}

func TestSession_ManualSubmitScoresHalf(t *testing.T) {
	repo := newFakeRepo()
	s := manualSession(t, repo)

	attempt, err := s.Start(context.Background(), twoChoiceAssessment(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, StateInProgress, attempt.State)
	assert.Equal(t, "stu-1", attempt.ExamineeID)

	require.NoError(t, s.Answer("q1", "B"))
	require.NoError(t, s.Answer("q2", "A"))

	res, err := s.Submit(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, res.Percentage, 1e-9)
	require.Len(t, res.PerQuestion, 2)
	assert.True(t, res.PerQuestion[0].Correct)
	assert.False(t, res.PerQuestion[1].Correct)

	st := waitPersisted(t, s)
	assert.Equal(t, PersistSaved, st.State)
	assert.Equal(t, 1, repo.saveCount())

	saved := repo.saved[attempt.ID]
	assert.Equal(t, StateSubmitted, saved.State)
	assert.Equal(t, TriggerManual, saved.Trigger)
	require.NotNil(t, saved.Score)
	assert.InDelta(t, 50.0, *saved.Score, 1e-9)
	assert.NotNil(t, saved.SubmittedAt)
}

func TestSession_ElapsedFromRemaining(t *testing.T) {
	s := manualSession(t, newFakeRepo())
	_, err := s.Start(context.Background(), twoChoiceAssessment(), "stu-1")
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		s.timer.tick()
	}
	_, err = s.Submit(context.Background(), TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 7, s.Attempt().ElapsedSeconds)
	waitPersisted(t, s)
}

func TestSession_ExpiryAutoSubmits(t *testing.T) {
	repo := newFakeRepo()
	submitted := make(chan Attempt, 1)
	s := NewSession(repo,
		WithTimerOptions(WithTickInterval(time.Millisecond)),
		OnSubmitted(func(a Attempt, _ Result) { submitted <- a }),
	)

	_, err := s.Start(context.Background(), twoChoiceAssessment(), "stu-1")
	require.NoError(t, err)

	var a Attempt
	select {
	case a = <-submitted:
	case <-time.After(5 * time.Second):
		t.Fatal("attempt was not submitted on expiry")
	}

	assert.Equal(t, StateSubmitted, a.State)
	assert.Equal(t, TriggerExpiry, a.Trigger)
	assert.Equal(t, 60, a.ElapsedSeconds)
	assert.Equal(t, StateSubmitted, s.State())

	waitPersisted(t, s)
	assert.Equal(t, 1, repo.saveCount())
}

func TestSession_SubmitIsIdempotent(t *testing.T) {
	tests := []struct {
		name   string
		first  Trigger
		second Trigger
	}{
		{name: "manual then expiry", first: TriggerManual, second: TriggerExpiry},
		{name: "expiry then manual", first: TriggerExpiry, second: TriggerManual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			var scored int
			s := manualSession(t, repo, OnSubmitted(func(Attempt, Result) { scored++ }))
			_, err := s.Start(context.Background(), twoChoiceAssessment(), "stu-1")
			require.NoError(t, err)
			require.NoError(t, s.Answer("q1", "B"))

			first, err := s.Submit(context.Background(), tt.first)
			require.NoError(t, err)
			second, err := s.Submit(context.Background(), tt.second)
			require.NoError(t, err)

			assert.Equal(t, first, second)
			assert.Equal(t, tt.first, s.Attempt().Trigger)
			waitPersisted(t, s)
			assert.Equal(t, 1, repo.saveCount())
			assert.Equal(t, 1, scored)
		})
	}
}

func TestSession_ConcurrentSubmitPersistsOnce(t *testing.T) {
	repo := newFakeRepo()
	s := manualSession(t, repo)
	_, err := s.Start(context.Background(), twoChoiceAssessment(), "stu-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Result, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trigger := TriggerManual
			if i%2 == 0 {
				trigger = TriggerExpiry
			}
			r, err := s.Submit(context.Background(), trigger)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
	waitPersisted(t, s)
	assert.Equal(t, 1, repo.saveCount())
}

func TestSession_AllCorrectAndAllWrong(t *testing.T) {
	a := twoChoiceAssessment()
	a.Questions = append(a.Questions, Question{ID: "q3", Kind: KindTrueFalse, Options: []string{"true", "false"}, CorrectOption: "true", Points: 10})

	tests := []struct {
		name    string
		answers map[string]string
		want    float64
	}{
		{name: "all correct", answers: map[string]string{"q1": "B", "q2": "B", "q3": "true"}, want: 100},
		{name: "all wrong", answers: map[string]string{"q1": "A", "q2": "C", "q3": "false"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := manualSession(t, newFakeRepo())
			_, err := s.Start(context.Background(), a, "stu-1")
			require.NoError(t, err)
			for id, v := range tt.answers {
				require.NoError(t, s.Answer(id, v))
			}
			res, err := s.Submit(context.Background(), TriggerManual)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.Percentage, 1e-9)
			waitPersisted(t, s)
		})
	}
}

func TestSession_AttemptLimitExceeded(t *testing.T) {
	now := time.Now()
	repo := newFakeRepo(Attempt{ID: "old", AssessmentID: "quiz-1", ExamineeID: "stu-1", State: StateSubmitted, SubmittedAt: &now})
	a := twoChoiceAssessment()
	a.MaxAttempts = 1

	s := manualSession(t, repo)
	_, err := s.Start(context.Background(), a, "stu-1")
	assert.ErrorIs(t, err, ErrAttemptLimitExceeded)
	assert.Equal(t, StateNotStarted, s.State())
	assert.Zero(t, repo.saveCount())

	// 其他考生不受影响
	other := manualSession(t, repo)
	_, err = other.Start(context.Background(), a, "stu-2")
	assert.NoError(t, err)
}

func TestSession_AttemptLimitLookupFails(t *testing.T) {
	repo := newFakeRepo()
	repo.listErr = errors.New("db down")
	a := twoChoiceAssessment()
	a.MaxAttempts = 3

	_, err := manualSession(t, repo).Start(context.Background(), a, "stu-1")
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestSession_AvailabilityWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	notYet := twoChoiceAssessment()
	notYet.AvailableFrom = &later
	_, err := manualSession(t, newFakeRepo(), WithClock(func() time.Time { return now })).Start(context.Background(), notYet, "stu-1")
	assert.ErrorIs(t, err, ErrAssessmentNotYetAvailable)

	closed := twoChoiceAssessment()
	closed.AvailableUntil = &earlier
	_, err = manualSession(t, newFakeRepo(), WithClock(func() time.Time { return now })).Start(context.Background(), closed, "stu-1")
	assert.ErrorIs(t, err, ErrAssessmentClosed)

	open := twoChoiceAssessment()
	open.AvailableFrom = &earlier
	open.AvailableUntil = &later
	_, err = manualSession(t, newFakeRepo(), WithClock(func() time.Time { return now })).Start(context.Background(), open, "stu-1")
	assert.NoError(t, err)
}

func TestSession_InvalidStateTransitions(t *testing.T) {
	s := manualSession(t, newFakeRepo())

	assert.ErrorIs(t, s.Answer("q1", "B"), ErrInvalidState)
	_, err := s.Navigate(1)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = s.Submit(context.Background(), TriggerManual)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = s.Start(context.Background(), twoChoiceAssessment(), "stu-1")
	require.NoError(t, err)
	_, err = s.Start(context.Background(), twoChoiceAssessment(), "stu-1")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, s.Answer("nope", "B"), ErrUnknownQuestion)

	_, err = s.Submit(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Answer("q1", "B"), ErrInvalidState)
	waitPersisted(t, s)
}

func TestSession_InvalidDuration(t *testing.T) {
	a := twoChoiceAssessment()
	a.DurationMinutes = 0
	s := manualSession(t, newFakeRepo())

	_, err := s.Start(context.Background(), a, "stu-1")
	assert.ErrorIs(t, err, ErrInvalidDuration)
	assert.Equal(t, StateNotStarted, s.State())
}

func TestSession_NavigateClamps(t *testing.T) {
	s := manualSession(t, newFakeRepo())
	_, err := s.Start(context.Background(), twoChoiceAssessment(), "stu-1")
	require.NoError(t, err)

	tests := []struct {
		index int
		want  int
	}{
		{index: 1, want: 1},
		{index: 5, want: 1},
		{index: -3, want: 0},
		{index: 0, want: 0},
	}
	for _, tt := range tests {
		got, err := s.Navigate(tt.index)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err = s.Submit(context.Background(), TriggerManual)
	require.NoError(t, err)
	got, err := s.Navigate(1)
	assert.NoError(t, err)
	assert.Equal(t, 1, got)
	waitPersisted(t, s)
}

func TestSession_PersistenceFailureKeepsResult(t *testing.T) {
	repo := newFakeRepo()
	repo.saveErr = errors.New("connection refused")
	var persistErr error
	s := manualSession(t, repo, OnPersisted(func(_ Attempt, err error) { persistErr = err }))

	_, err := s.Start(context.Background(), twoChoiceAssessment(), "stu-1")
	require.NoError(t, err)
	require.NoError(t, s.Answer("q1", "B"))
	res, err := s.Submit(context.Background(), TriggerManual)
	require.NoError(t, err)

	st := waitPersisted(t, s)
	assert.Equal(t, PersistFailed, st.State)
	assert.ErrorIs(t, st.Err, ErrPersistence)
	assert.ErrorIs(t, persistErr, ErrPersistence)

	kept, ok := s.Result()
	assert.True(t, ok)
	assert.Equal(t, res, kept)
}

func TestSession_SubmitDoesNotWaitForPersistence(t *testing.T) {
	repo := newFakeRepo()
	repo.released = make(chan struct{})
	s := manualSession(t, repo)

	_, err := s.Start(context.Background(), twoChoiceAssessment(), "stu-1")
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, StateSubmitted, s.State())
	assert.Equal(t, PersistPending, s.PersistStatus().State)

	close(repo.released)
	assert.Equal(t, PersistSaved, waitPersisted(t, s).State)
}

func TestSession_ShortAnswerCaseMismatch(t *testing.T) {
	a := Assessment{
		ID:              "geo",
		Title:           "Capitals",
		DurationMinutes: 5,
		Questions:       []Question{{ID: "fr", Kind: KindShortAnswer, ExpectedAnswer: "Paris", Points: 10}},
	}
	s := manualSession(t, newFakeRepo())
	_, err := s.Start(context.Background(), a, "stu-1")
	require.NoError(t, err)
	require.NoError(t, s.Answer("fr", "paris"))

	res, err := s.Submit(context.Background(), TriggerManual)
	require.NoError(t, err)
	require.Len(t, res.PerQuestion, 1)
	assert.False(t, res.PerQuestion[0].Correct)
	waitPersisted(t, s)
}

func TestSession_ProgressAndDrafts(t *testing.T) {
	var (
		mu     sync.Mutex
		drafts []string
	)
	s := manualSession(t, newFakeRepo(),
		WithIDGenerator(func() string { return "attempt-7" }),
		WithDraftSaver(func(attemptID, questionID, value string) {
			mu.Lock()
			drafts = append(drafts, attemptID+"/"+questionID+"="+value)
			mu.Unlock()
		}),
	)
	_, err := s.Start(context.Background(), twoChoiceAssessment(), "stu-1")
	require.NoError(t, err)
	require.NoError(t, s.Answer("q2", "C"))

	p := s.Progress()
	assert.Equal(t, 1, p.Answered)
	assert.Equal(t, 2, p.Total)
	assert.InDelta(t, 50.0, p.Percentage, 1e-9)
	assert.Equal(t, 60, p.Remaining)
	assert.Equal(t, []QuestionStatus{{QuestionID: "q1"}, {QuestionID: "q2", Answered: true}}, p.Questions)
	assert.Equal(t, []string{"attempt-7/q2=C"}, drafts)
}

func TestSession_ExpiredEventPrecedesSubmit(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}
	s := manualSession(t, newFakeRepo(),
		OnTimerEvent(func(ev TimerEvent) {
			if ev.Kind == EventExpired {
				record("expired")
			}
		}),
		OnSubmitted(func(Attempt, Result) { record("submitted") }),
	)
	_, err := s.Start(context.Background(), twoChoiceAssessment(), "stu-1")
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		s.timer.tick()
	}
	waitPersisted(t, s)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"expired", "submitted"}, order)
}

func TestSession_AttemptLimitCountsUnsavedAttempts(t *testing.T) {
	now := time.Now()
	a := twoChoiceAssessment()
	a.MaxAttempts = 1
	unsaved := Attempt{ID: "pending", AssessmentID: "quiz-1", ExamineeID: "stu-1", State: StateSubmitted, SubmittedAt: &now}

	tests := []struct {
		name    string
		saved   []Attempt
		unsaved []Attempt
		max     int
		wantErr error
	}{
		{name: "unsaved submit counts", unsaved: []Attempt{unsaved}, max: 1, wantErr: ErrAttemptLimitExceeded},
		{name: "same attempt saved and unsaved counts once", saved: []Attempt{unsaved}, unsaved: []Attempt{unsaved}, max: 2},
		{name: "nothing submitted", max: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a.MaxAttempts = tt.max
			s := manualSession(t, newFakeRepo(tt.saved...),
				WithUnsavedAttempts(func(examineeID, assessmentID string) []Attempt {
					assert.Equal(t, "stu-1", examineeID)
					assert.Equal(t, "quiz-1", assessmentID)
					return tt.unsaved
				}),
			)
			_, err := s.Start(context.Background(), a, "stu-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSession_WhitespaceAnswerIsUnanswered(t *testing.T) {
	s := manualSession(t, newFakeRepo())
	_, err := s.Start(context.Background(), twoChoiceAssessment(), "stu-1")
	require.NoError(t, err)
	require.NoError(t, s.Answer("q1", "   "))
	require.NoError(t, s.Answer("q2", "B"))

	assert.Equal(t, 1, s.Progress().Answered)

	_, err = s.Submit(context.Background(), TriggerManual)
	require.NoError(t, err)
	p := s.Progress()
	assert.Equal(t, 1, p.Answered, "submitted progress uses the same rule")
	assert.False(t, p.Questions[0].Answered)
	waitPersisted(t, s)
}
