package memory

import (
	"context"
	"sync"

	"github.com/Wyydra/agentcall/internal/core/domain"
)

type SummaryRepository struct {
	mu        sync.Mutex
	summaries []domain.CallSummary
}

func NewSummaryRepository() *SummaryRepository {
	return &SummaryRepository{
		summaries: make([]domain.CallSummary, 0),
	}
}

func (r *SummaryRepository) Save(ctx context.Context, summary domain.CallSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, summary)
	return nil
}

// All returns stored summaries, oldest first.
func (r *SummaryRepository) All() []domain.CallSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.CallSummary, len(r.summaries))
	copy(out, r.summaries)
	return out
}
