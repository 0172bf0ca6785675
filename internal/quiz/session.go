package quiz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository 作答记录的持久化接口，由外部实现
type Repository interface {
	// SaveAttempt 按 ID 创建或覆盖，相同内容重复保存是幂等的
	SaveAttempt(ctx context.Context, attempt Attempt) (Attempt, error)
	// ListAttemptsByAssessment 按提交时间倒序返回
	ListAttemptsByAssessment(ctx context.Context, assessmentID string) ([]Attempt, error)
}

type PersistState string

const (
	PersistNone    PersistState = "none"
	PersistPending PersistState = "pending"
	PersistSaved   PersistState = "saved"
	PersistFailed  PersistState = "failed"
)

type PersistStatus struct {
	State PersistState `json:"state"`
	Err   error        `json:"-"`
}

// DraftFunc 作答过程中每次写入答案时调用
type DraftFunc func(attemptID, questionID, value string)

type SessionOption func(*Session)

func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

func WithIDGenerator(gen func() string) SessionOption {
	return func(s *Session) { s.newID = gen }
}

func WithTimerOptions(opts ...TimerOption) SessionOption {
	return func(s *Session) { s.timerOpts = append(s.timerOpts, opts...) }
}

func WithDraftSaver(fn DraftFunc) SessionOption {
	return func(s *Session) { s.draft = fn }
}

func WithPersistTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// OnSubmitted 在状态提交为 submitted 之后、持久化开始之前调用，只会调用一次
func OnSubmitted(fn func(Attempt, Result)) SessionOption {
	return func(s *Session) { s.onSubmitted = fn }
}

// OnPersisted 持久化结束后调用，err 为 nil 表示保存成功
func OnPersisted(fn func(Attempt, error)) SessionOption {
	return func(s *Session) { s.onPersisted = fn }
}

// OnTimerEvent 在计时 goroutine 上接收倒计时事件，到期事件先于自动提交送达
func OnTimerEvent(fn TimerListener) SessionOption {
	return func(s *Session) { s.onTimer = fn }
}

// UnsavedAttemptsFunc 返回已提交但仓库中可能还查不到的作答（保存中或保存失败）
type UnsavedAttemptsFunc func(examineeID, assessmentID string) []Attempt

// WithUnsavedAttempts 次数限制同时统计这些作答，按 ID 与仓库结果去重
func WithUnsavedAttempts(fn UnsavedAttemptsFunc) SessionOption {
	return func(s *Session) { s.unsaved = fn }
}

// Session 一次作答的状态机：not_started -> in_progress -> submitted。
// 所有操作在同一把锁下串行执行，计时器到期和手动提交谁先拿到锁谁生效。
type Session struct {
	mu sync.Mutex

	repo       Repository
	state      State
	assessment Assessment
	attempt    Attempt
	store      *AnswerStore
	timer      *Timer
	cursor     int
	result     Result

	persist     PersistStatus
	persistDone chan struct{}

	now            func() time.Time
	newID          func() string
	timerOpts      []TimerOption
	draft          DraftFunc
	persistTimeout time.Duration
	onSubmitted    func(Attempt, Result)
	onPersisted    func(Attempt, error)
	onTimer        TimerListener
	unsaved        UnsavedAttemptsFunc
}

func NewSession(repo Repository, opts ...SessionOption) *Session {
	s := &Session{
		repo:           repo,
		state:          StateNotStarted,
		persist:        PersistStatus{State: PersistNone},
		persistDone:    make(chan struct{}),
		now:            time.Now,
		newID:          uuid.NewString,
		persistTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 校验开放时间与次数限制后创建作答并开始倒计时
func (s *Session) Start(ctx context.Context, a Assessment, examineeID string) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNotStarted {
		return Attempt{}, ErrInvalidState
	}

	now := s.now()
	if err := a.CheckAvailable(now); err != nil {
		return Attempt{}, err
	}

	if a.MaxAttempts > 0 {
		prior, err := s.repo.ListAttemptsByAssessment(ctx, a.ID)
		if err != nil {
			return Attempt{}, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if s.unsaved != nil {
			prior = mergeAttempts(prior, s.unsaved(examineeID, a.ID))
		}
		if CountSubmitted(prior, examineeID) >= a.MaxAttempts {
			return Attempt{}, ErrAttemptLimitExceeded
		}
	}

	timer, err := NewTimer(a.DurationMinutes, s.timerOpts...)
	if err != nil {
		return Attempt{}, err
	}

	attemptID := s.newID()
	var autosave AutosaveFunc
	if s.draft != nil {
		draft := s.draft
		autosave = func(questionID, value string) { draft(attemptID, questionID, value) }
	}

	s.assessment = a
	s.timer = timer
	s.store = NewAnswerStore(autosave)
	s.cursor = 0
	s.attempt = Attempt{
		ID:           attemptID,
		AssessmentID: a.ID,
		ExamineeID:   examineeID,
		State:        StateInProgress,
		Answers:      map[string]string{},
		StartedAt:    now,
	}
	s.state = StateInProgress

	timer.Subscribe(s.onTimerEvent)
	timer.Start()

	return s.attempt.clone(), nil
}

func (s *Session) onTimerEvent(ev TimerEvent) {
	if s.onTimer != nil {
		s.onTimer(ev)
	}
	if ev.Kind != EventExpired {
		return
	}
	_, _ = s.Submit(context.Background(), TriggerExpiry)
}

func mergeAttempts(saved, extra []Attempt) []Attempt {
	seen := make(map[string]bool, len(saved))
	for _, a := range saved {
		seen[a.ID] = true
	}
	out := saved
	for _, a := range extra {
		if !seen[a.ID] {
			seen[a.ID] = true
			out = append(out, a)
		}
	}
	return out
}

// Answer 记录某题答案，只允许在作答中调用
func (s *Session) Answer(questionID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress {
		return ErrInvalidState
	}
	if _, ok := s.assessment.Question(questionID); !ok {
		return ErrUnknownQuestion
	}
	s.store.SetAnswer(questionID, value)
	return nil
}

// Navigate 切换当前题目，越界时截断到合法范围
func (s *Session) Navigate(index int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateNotStarted {
		return 0, ErrInvalidState
	}

	last := len(s.assessment.Questions) - 1
	switch {
	case last < 0 || index < 0:
		s.cursor = 0
	case index > last:
		s.cursor = last
	default:
		s.cursor = index
	}
	return s.cursor, nil
}

// Submit 评分并提交。重复调用直接返回第一次的结果，不会重复评分或保存。
func (s *Session) Submit(ctx context.Context, trigger Trigger) (Result, error) {
	s.mu.Lock()
	switch s.state {
	case StateNotStarted:
		s.mu.Unlock()
		return Result{}, ErrInvalidState
	case StateSubmitted:
		r := s.result
		s.mu.Unlock()
		return r, nil
	}

	s.timer.Stop()
	total := s.timer.Total()
	elapsed := total - s.timer.Remaining()
	if trigger == TriggerExpiry || elapsed > total {
		elapsed = total
	}
	if elapsed < 0 {
		elapsed = 0
	}

	answers := s.store.Snapshot()
	result := Score(s.assessment.Questions, answers)
	submittedAt := s.now()
	pct := result.Percentage

	s.attempt.Answers = answers
	s.attempt.ElapsedSeconds = elapsed
	s.attempt.Score = &pct
	s.attempt.Result = &result
	s.attempt.SubmittedAt = &submittedAt
	s.attempt.State = StateSubmitted
	s.attempt.Trigger = trigger

	s.result = result
	s.state = StateSubmitted
	s.store = nil
	s.persist = PersistStatus{State: PersistPending}
	attempt := s.attempt.clone()
	s.mu.Unlock()

	if s.onSubmitted != nil {
		s.onSubmitted(attempt, result)
	}
	go s.persistAttempt(ctx, attempt)

	return result, nil
}

func (s *Session) persistAttempt(ctx context.Context, attempt Attempt) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	_, err := s.repo.SaveAttempt(pctx, attempt)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.mu.Lock()
	if err != nil {
		s.persist = PersistStatus{State: PersistFailed, Err: err}
	} else {
		s.persist = PersistStatus{State: PersistSaved}
	}
	s.mu.Unlock()

	if s.onPersisted != nil {
		s.onPersisted(attempt, err)
	}
	close(s.persistDone)
}

// WaitPersisted 等待提交后的持久化结束
func (s *Session) WaitPersisted(ctx context.Context) (PersistStatus, error) {
	select {
	case <-s.persistDone:
		return s.PersistStatus(), nil
	case <-ctx.Done():
		return s.PersistStatus(), ctx.Err()
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) PersistStatus() PersistStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist
}

func (s *Session) Attempt() Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.attempt.clone()
	if s.store != nil {
		a.Answers = s.store.Snapshot()
	}
	return a
}

func (s *Session) Assessment() Assessment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assessment
}

// Result 提交后返回得分，未提交时第二个返回值为 false
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.state == StateSubmitted
}

type QuestionStatus struct {
	QuestionID string `json:"questionId"`
	Answered   bool   `json:"answered"`
}

type Progress struct {
	State      State            `json:"state"`
	Current    int              `json:"current"`
	Answered   int              `json:"answered"`
	Total      int              `json:"total"`
	Percentage float64          `json:"percentage"`
	Remaining  int              `json:"remaining"`
	Questions  []QuestionStatus `json:"questions"`
}

// Progress 当前作答进度：已答题数 / 总题数
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	isAnswered := func(id string) bool { return IsAnswered(s.attempt.Answers[id]) }
	if s.store != nil {
		isAnswered = s.store.IsAnswered
	}

	p := Progress{
		State:     s.state,
		Current:   s.cursor,
		Total:     len(s.assessment.Questions),
		Questions: make([]QuestionStatus, 0, len(s.assessment.Questions)),
	}
	if s.timer != nil {
		p.Remaining = s.timer.Remaining()
	}
	for _, q := range s.assessment.Questions {
		answered := isAnswered(q.ID)
		if answered {
			p.Answered++
		}
		p.Questions = append(p.Questions, QuestionStatus{QuestionID: q.ID, Answered: answered})
	}
	if p.Total > 0 {
		p.Percentage = 100 * float64(p.Answered) / float64(p.Total)
	}
	return p
}
