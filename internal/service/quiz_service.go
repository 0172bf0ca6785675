package service

import (
	"context"
	"errors"
	"school_dashboard_backend/internal/config"
	"school_dashboard_backend/internal/quiz"
	"school_dashboard_backend/internal/util"
	"school_dashboard_backend/pkg/logger"
	"school_dashboard_backend/pkg/monitoring"
	"school_dashboard_backend/pkg/tracing"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// AssessmentSource 提供可作答的测验
type AssessmentSource interface {
	GetAssessmentByID(ctx context.Context, id string) (quiz.Assessment, error)
}

// AttemptStore 作答记录存储
type AttemptStore interface {
	quiz.Repository
	FindAttemptByID(ctx context.Context, id string) (quiz.Attempt, error)
	ListAttemptsByExaminee(ctx context.Context, examineeID, assessmentID string) ([]quiz.Attempt, error)
}

// DraftStore 作答草稿，可为空。草稿只用于故障后人工恢复，服务本身不回读
type DraftStore interface {
	SaveDraft(ctx context.Context, attemptID, questionID, value string, ttl time.Duration) error
	DeleteDraft(ctx context.Context, attemptID string) error
}

// ResultArchiver 提交结果归档，可为空
type ResultArchiver interface {
	Archive(ctx context.Context, attempt quiz.Attempt) error
}

type StreamEventKind string

const (
	StreamTick      StreamEventKind = "tick"
	StreamExpired   StreamEventKind = "expired"
	StreamSubmitted StreamEventKind = "submitted"
)

// StreamEvent 推送给前端的倒计时事件
type StreamEvent struct {
	Kind      StreamEventKind `json:"kind"`
	Remaining int             `json:"remaining"`
	Score     *float64        `json:"score,omitempty"`
}

// AttemptView 作答详情，作答中附带进度，提交后附带是否及格和保存状态
type AttemptView struct {
	quiz.Attempt
	Progress      *quiz.Progress    `json:"progress,omitempty"`
	Remaining     int               `json:"remaining"`
	PassingScore  float64           `json:"passingScore"`
	Passed        *bool             `json:"passed,omitempty"`
	PersistStatus quiz.PersistState `json:"persistStatus"`
	PersistError  string            `json:"persistError,omitempty"`
	Resumed       bool              `json:"resumed,omitempty"`
}

type liveSession struct {
	session      *quiz.Session
	examineeID   string
	assessmentID string

	mu     sync.Mutex
	subs   map[int]chan StreamEvent
	nextID int
}

func (l *liveSession) broadcast(ev StreamEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// 客户端跟不上时丢弃 tick；到期和提交事件挤掉最旧的一条
		if ev.Kind == StreamTick {
			continue
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

type QuizService struct {
	Assessments AssessmentSource
	Attempts    AttemptStore
	Drafts      DraftStore
	Archive     ResultArchiver

	cfg         config.QuizConfig
	sessionOpts []quiz.SessionOption

	mu             sync.Mutex
	defaultPassing float64
	sessions       map[string]*liveSession // attemptID -> session
	active         map[string]string       // examinee|assessment -> attemptID
	startLocks     *keyedMutex
}

func NewQuizService(assessments AssessmentSource, attempts AttemptStore, drafts DraftStore, archive ResultArchiver, cfg config.QuizConfig, opts ...quiz.SessionOption) *QuizService {
	if cfg.DefaultPassingScore <= 0 {
		cfg.DefaultPassingScore = quiz.DefaultPassingScore
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &QuizService{
		Assessments:    assessments,
		Attempts:       attempts,
		Drafts:         drafts,
		Archive:        archive,
		cfg:            cfg,
		sessionOpts:    opts,
		defaultPassing: cfg.DefaultPassingScore,
		sessions:       make(map[string]*liveSession),
		active:         make(map[string]string),
		startLocks:     newKeyedMutex(),
	}
}

// Reload 配置热更新时调用
func (s *QuizService) Reload(cfg *config.Config) {
	s.SetDefaultPassingScore(cfg.Quiz.DefaultPassingScore)
}

func (s *QuizService) SetDefaultPassingScore(v float64) {
	if v < 0 || v > 100 {
		return
	}
	s.mu.Lock()
	s.defaultPassing = v
	s.mu.Unlock()
	logger.L().Info("quiz default passing score updated", zap.Float64("passingScore", v))
}

func (s *QuizService) DefaultPassingScore() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultPassing
}

func activeKey(examineeID, assessmentID string) string {
	return examineeID + "|" + assessmentID
}

// Start 开始作答；同一考生对同一测验已有进行中的作答时直接恢复该作答
func (s *QuizService) Start(ctx context.Context, examineeID, assessmentID string) (*AttemptView, error) {
	ctx, span := tracing.Tracer.Start(ctx, "quiz.Start")
	defer span.End()
	span.SetAttributes(attribute.String("assessment.id", assessmentID))

	key := activeKey(examineeID, assessmentID)
	unlock := s.startLocks.Lock(key)
	defer unlock()

	if live := s.activeSession(key); live != nil {
		view := s.liveView(live)
		view.Resumed = true
		return view, nil
	}

	a, err := s.Assessments.GetAssessmentByID(ctx, assessmentID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	live := &liveSession{examineeID: examineeID, assessmentID: assessmentID, subs: make(map[int]chan StreamEvent)}
	opts := []quiz.SessionOption{
		quiz.WithTimerOptions(quiz.WithTickInterval(s.cfg.TickInterval)),
		quiz.WithPersistTimeout(s.cfg.PersistTimeout),
		quiz.WithUnsavedAttempts(s.submittedInMemory),
		// 计时事件转发给订阅者，expired 在自动提交之前送达
		quiz.OnTimerEvent(func(ev quiz.TimerEvent) {
			kind := StreamTick
			if ev.Kind == quiz.EventExpired {
				kind = StreamExpired
			}
			live.broadcast(StreamEvent{Kind: kind, Remaining: ev.Remaining})
		}),
		quiz.OnSubmitted(func(attempt quiz.Attempt, result quiz.Result) {
			s.onSubmitted(live, attempt, result)
		}),
		quiz.OnPersisted(s.onPersisted),
	}
	if s.Drafts != nil {
		ttl := time.Duration(a.DurationMinutes)*time.Minute + s.cfg.DraftTTLGrace
		opts = append(opts, quiz.WithDraftSaver(s.saveDraft(ttl)))
	}
	opts = append(opts, s.sessionOpts...)
	live.session = quiz.NewSession(s.Attempts, opts...)

	attempt, err := live.session.Start(ctx, a, examineeID)
	if err != nil {
		recordRejection(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.mu.Lock()
	s.sessions[attempt.ID] = live
	s.active[key] = attempt.ID
	s.mu.Unlock()

	monitoring.AttemptsStarted.Inc()
	monitoring.ActiveSessions.Inc()
	span.SetAttributes(attribute.String("attempt.id", attempt.ID))
	logger.L().Info("quiz attempt started",
		zap.String("attemptId", attempt.ID),
		zap.String("assessmentId", assessmentID),
		zap.String("examineeId", examineeID),
		zap.Int("durationMinutes", a.DurationMinutes))

	return s.liveView(live), nil
}

func recordRejection(err error) {
	switch {
	case errors.Is(err, quiz.ErrAttemptLimitExceeded):
		monitoring.AttemptsRejected.WithLabelValues("attempt_limit").Inc()
	case errors.Is(err, quiz.ErrAssessmentNotYetAvailable):
		monitoring.AttemptsRejected.WithLabelValues("not_yet_available").Inc()
	case errors.Is(err, quiz.ErrAssessmentClosed):
		monitoring.AttemptsRejected.WithLabelValues("closed").Inc()
	}
}

func (s *QuizService) saveDraft(ttl time.Duration) quiz.DraftFunc {
	return func(attemptID, questionID, value string) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := s.Drafts.SaveDraft(ctx, attemptID, questionID, value, ttl); err != nil {
				logger.L().Warn("failed to save answer draft",
					zap.String("attemptId", attemptID),
					zap.String("questionId", questionID),
					zap.Error(err))
			}
		}()
	}
}

func (s *QuizService) onSubmitted(live *liveSession, attempt quiz.Attempt, result quiz.Result) {
	s.mu.Lock()
	key := activeKey(attempt.ExamineeID, attempt.AssessmentID)
	if s.active[key] == attempt.ID {
		delete(s.active, key)
	}
	s.mu.Unlock()

	monitoring.AttemptsSubmitted.WithLabelValues(string(attempt.Trigger)).Inc()
	monitoring.ActiveSessions.Dec()
	monitoring.ScoreHistogram.Observe(result.Percentage)

	score := result.Percentage
	live.broadcast(StreamEvent{Kind: StreamSubmitted, Score: &score})

	logger.L().Info("quiz attempt submitted",
		zap.String("attemptId", attempt.ID),
		zap.String("trigger", string(attempt.Trigger)),
		zap.Float64("score", result.Percentage),
		zap.Int("elapsedSeconds", attempt.ElapsedSeconds))
}

func (s *QuizService) onPersisted(attempt quiz.Attempt, err error) {
	_, span := tracing.Tracer.Start(context.Background(), "quiz.Persist")
	defer span.End()
	span.SetAttributes(attribute.String("attempt.id", attempt.ID))

	if err != nil {
		// 保存失败的作答留在内存中，结果仍可查看
		monitoring.PersistFailures.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().Error("failed to persist quiz attempt",
			zap.String("attemptId", attempt.ID),
			zap.String("examineeId", attempt.ExamineeID),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.Drafts != nil {
		if err := s.Drafts.DeleteDraft(ctx, attempt.ID); err != nil {
			logger.L().Warn("failed to delete answer draft", zap.String("attemptId", attempt.ID), zap.Error(err))
		}
	}
	if s.Archive != nil {
		if err := s.Archive.Archive(ctx, attempt); err != nil {
			logger.L().Warn("failed to archive quiz attempt", zap.String("attemptId", attempt.ID), zap.Error(err))
		}
	}

	if s.cfg.SessionRetention > 0 {
		time.AfterFunc(s.cfg.SessionRetention, func() { s.evict(attempt.ID) })
	}
}

// submittedInMemory 内存中已提交的作答，保存中或保存失败的也计入次数限制
func (s *QuizService) submittedInMemory(examineeID, assessmentID string) []quiz.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []quiz.Attempt
	for _, live := range s.sessions {
		if live.examineeID != examineeID || live.assessmentID != assessmentID {
			continue
		}
		if live.session.State() == quiz.StateSubmitted {
			out = append(out, live.session.Attempt())
		}
	}
	return out
}

// HasLiveAttempts 测验是否有尚在内存中的作答，包括进行中的
func (s *QuizService) HasLiveAttempts(assessmentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, live := range s.sessions {
		if live.assessmentID == assessmentID {
			return true
		}
	}
	return false
}

func (s *QuizService) evict(attemptID string) {
	s.mu.Lock()
	delete(s.sessions, attemptID)
	s.mu.Unlock()
}

func (s *QuizService) activeSession(key string) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[key]
	if !ok {
		return nil
	}
	live := s.sessions[id]
	if live == nil || live.session.State() != quiz.StateInProgress {
		return nil
	}
	return live
}

// lookup 查找内存中的作答并校验归属
func (s *QuizService) lookup(examineeID, attemptID string) (*liveSession, error) {
	s.mu.Lock()
	live, ok := s.sessions[attemptID]
	s.mu.Unlock()
	if !ok {
		return nil, util.ErrAttemptNotFound
	}
	if live.examineeID != examineeID {
		return nil, util.ErrPermissionDenied
	}
	return live, nil
}

func (s *QuizService) Answer(examineeID, attemptID, questionID, value string) (quiz.Progress, error) {
	live, err := s.lookup(examineeID, attemptID)
	if err != nil {
		return quiz.Progress{}, err
	}
	if err := live.session.Answer(questionID, value); err != nil {
		return quiz.Progress{}, err
	}
	return live.session.Progress(), nil
}

func (s *QuizService) Navigate(examineeID, attemptID string, index int) (quiz.Progress, error) {
	live, err := s.lookup(examineeID, attemptID)
	if err != nil {
		return quiz.Progress{}, err
	}
	if _, err := live.session.Navigate(index); err != nil {
		return quiz.Progress{}, err
	}
	return live.session.Progress(), nil
}

// Submit 手动提交；已提交的作答直接返回已有结果
func (s *QuizService) Submit(ctx context.Context, examineeID, attemptID string) (*AttemptView, error) {
	ctx, span := tracing.Tracer.Start(ctx, "quiz.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("attempt.id", attemptID))

	live, err := s.lookup(examineeID, attemptID)
	if errors.Is(err, util.ErrAttemptNotFound) {
		stored, ferr := s.storedAttempt(ctx, examineeID, attemptID, false)
		if ferr != nil {
			return nil, ferr
		}
		return stored, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := live.session.Submit(ctx, quiz.TriggerManual); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return s.liveView(live), nil
}

// GetAttempt 作答中返回实时状态，提交后返回回看数据；教师可以查看任意作答
func (s *QuizService) GetAttempt(ctx context.Context, examineeID, attemptID string, privileged bool) (*AttemptView, error) {
	s.mu.Lock()
	live, ok := s.sessions[attemptID]
	s.mu.Unlock()
	if ok {
		if !privileged && live.examineeID != examineeID {
			return nil, util.ErrPermissionDenied
		}
		return s.liveView(live), nil
	}
	return s.storedAttempt(ctx, examineeID, attemptID, privileged)
}

func (s *QuizService) storedAttempt(ctx context.Context, examineeID, attemptID string, privileged bool) (*AttemptView, error) {
	attempt, err := s.Attempts.FindAttemptByID(ctx, attemptID)
	if errors.Is(err, quiz.ErrNotFound) {
		return nil, util.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	if !privileged && attempt.ExamineeID != examineeID {
		return nil, util.ErrPermissionDenied
	}

	view := &AttemptView{Attempt: attempt, PersistStatus: quiz.PersistSaved}
	var passing *float64
	if a, err := s.Assessments.GetAssessmentByID(ctx, attempt.AssessmentID); err == nil {
		passing = a.PassingScore
	}
	s.applyPassing(view, passing)
	return view, nil
}

func (s *QuizService) liveView(live *liveSession) *AttemptView {
	attempt := live.session.Attempt()
	progress := live.session.Progress()
	status := live.session.PersistStatus()

	view := &AttemptView{
		Attempt:       attempt,
		Progress:      &progress,
		Remaining:     progress.Remaining,
		PersistStatus: status.State,
	}
	if status.Err != nil {
		view.PersistError = status.Err.Error()
	}
	s.applyPassing(view, live.session.Assessment().PassingScore)
	return view
}

func (s *QuizService) applyPassing(view *AttemptView, passing *float64) {
	fallback := s.DefaultPassingScore()
	view.PassingScore = fallback
	if passing != nil {
		view.PassingScore = *passing
	}
	if view.State == quiz.StateSubmitted && view.Score != nil {
		passed := quiz.PassedWithDefault(*view.Score, passing, fallback)
		view.Passed = &passed
	}
}

// Subscribe 订阅作答的倒计时事件，返回的取消函数必须调用
func (s *QuizService) Subscribe(examineeID, attemptID string) (<-chan StreamEvent, func(), error) {
	live, err := s.lookup(examineeID, attemptID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan StreamEvent, 16)
	live.mu.Lock()
	id := live.nextID
	live.nextID++
	live.subs[id] = ch
	live.mu.Unlock()

	cancel := func() {
		live.mu.Lock()
		delete(live.subs, id)
		live.mu.Unlock()
	}
	return ch, cancel, nil
}

// ListMyAttempts 考生自己的作答记录，按提交时间倒序
func (s *QuizService) ListMyAttempts(ctx context.Context, examineeID, assessmentID string) ([]quiz.Attempt, error) {
	return s.Attempts.ListAttemptsByExaminee(ctx, examineeID, assessmentID)
}

// ListAssessmentAttempts 某测验的全部作答，供教师回看
func (s *QuizService) ListAssessmentAttempts(ctx context.Context, assessmentID string) ([]quiz.Attempt, error) {
	return s.Attempts.ListAttemptsByAssessment(ctx, assessmentID)
}

// ActiveCount 进行中的作答数量
func (s *QuizService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// keyedMutex 按 key 加锁，key 不再使用时释放
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
