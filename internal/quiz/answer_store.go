package quiz

import "sync"

// AutosaveFunc 每次 SetAnswer 之后调用，用于保存作答草稿
type AutosaveFunc func(questionID, value string)

// AnswerStore 当前作答中各题的答案，提交后丢弃
type AnswerStore struct {
	mu       sync.RWMutex
	answers  map[string]string
	autosave AutosaveFunc
}

func NewAnswerStore(autosave AutosaveFunc) *AnswerStore {
	return &AnswerStore{
		answers:  make(map[string]string),
		autosave: autosave,
	}
}

// SetAnswer 覆盖写入，不校验格式
func (s *AnswerStore) SetAnswer(questionID, value string) {
	s.mu.Lock()
	s.answers[questionID] = value
	s.mu.Unlock()

	if s.autosave != nil {
		s.autosave(questionID, value)
	}
}

func (s *AnswerStore) Answer(questionID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.answers[questionID]
	return v, ok
}

// IsAnswered 只含空白的答案视为未作答
func IsAnswered(value string) bool {
	return NormalizeAnswer(value) != ""
}

func (s *AnswerStore) IsAnswered(questionID string) bool {
	v, _ := s.Answer(questionID)
	return IsAnswered(v)
}

func (s *AnswerStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}
