package service

import (
	"context"
	"errors"
	"school_dashboard_backend/internal/quiz"
	"sort"
	"sync"
	"time"
)

type fakeAssessments struct {
	items map[string]quiz.Assessment
}

func (f *fakeAssessments) GetAssessmentByID(_ context.Context, id string) (quiz.Assessment, error) {
	a, ok := f.items[id]
	if !ok {
		return quiz.Assessment{}, quiz.ErrNotFound
	}
	return a, nil
}

type fakeAttempts struct {
	mu      sync.Mutex
	saved   map[string]quiz.Attempt
	saves   int
	saveErr error
	gate    chan struct{} // 非空时 SaveAttempt 阻塞到关闭
}

func newFakeAttempts(prior ...quiz.Attempt) *fakeAttempts {
	f := &fakeAttempts{saved: make(map[string]quiz.Attempt)}
	for _, a := range prior {
		f.saved[a.ID] = a
	}
	return f
}

func (f *fakeAttempts) SaveAttempt(_ context.Context, a quiz.Attempt) (quiz.Attempt, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return quiz.Attempt{}, f.saveErr
	}
	f.saved[a.ID] = a
	return a, nil
}

func (f *fakeAttempts) list(match func(quiz.Attempt) bool) []quiz.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []quiz.Attempt
	for _, a := range f.saved {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt == nil || out[j].SubmittedAt == nil {
			return false
		}
		return out[i].SubmittedAt.After(*out[j].SubmittedAt)
	})
	return out
}

func (f *fakeAttempts) ListAttemptsByAssessment(_ context.Context, id string) ([]quiz.Attempt, error) {
	return f.list(func(a quiz.Attempt) bool { return a.AssessmentID == id }), nil
}

func (f *fakeAttempts) ListAttemptsByExaminee(_ context.Context, examineeID, assessmentID string) ([]quiz.Attempt, error) {
	return f.list(func(a quiz.Attempt) bool {
		return a.ExamineeID == examineeID && (assessmentID == "" || a.AssessmentID == assessmentID)
	}), nil
}

func (f *fakeAttempts) FindAttemptByID(_ context.Context, id string) (quiz.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.saved[id]
	if !ok {
		return quiz.Attempt{}, quiz.ErrNotFound
	}
	return a, nil
}

func (f *fakeAttempts) CountByAssessment(_ context.Context, id string) (int64, error) {
	return int64(len(f.list(func(a quiz.Attempt) bool { return a.AssessmentID == id }))), nil
}

func (f *fakeAttempts) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

type fakeDrafts struct {
	mu      sync.Mutex
	drafts  map[string]map[string]string
	ttls    map[string]time.Duration
	deleted []string
}

func newFakeDrafts() *fakeDrafts {
	return &fakeDrafts{drafts: make(map[string]map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeDrafts) SaveDraft(_ context.Context, attemptID, questionID, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls[attemptID] = ttl
	if f.drafts[attemptID] == nil {
		f.drafts[attemptID] = map[string]string{}
	}
	f.drafts[attemptID][questionID] = value
	return nil
}

func (f *fakeDrafts) DeleteDraft(_ context.Context, attemptID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.drafts, attemptID)
	f.deleted = append(f.deleted, attemptID)
	return nil
}

func (f *fakeDrafts) draft(attemptID, questionID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drafts[attemptID][questionID]
}

func (f *fakeDrafts) ttl(attemptID string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[attemptID]
}

func (f *fakeDrafts) wasDeleted(attemptID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.deleted {
		if id == attemptID {
			return true
		}
	}
	return false
}

type fakeArchive struct {
	mu       sync.Mutex
	archived []string
}

func (f *fakeArchive) Archive(_ context.Context, a quiz.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.State != quiz.StateSubmitted {
		return errors.New("not submitted")
	}
	f.archived = append(f.archived, a.ID)
	return nil
}

func (f *fakeArchive) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.archived)
}
