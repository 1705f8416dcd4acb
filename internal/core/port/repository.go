package port

import (
	"context"

	"github.com/Wyydra/agentcall/internal/core/domain"
)

type SummaryRepository interface {
	Save(ctx context.Context, summary domain.CallSummary) error
}
