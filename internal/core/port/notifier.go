package port

import "github.com/Wyydra/agentcall/internal/core/domain"

type Notifier interface {
	Notify(n domain.Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n domain.Notice)

func (f NotifierFunc) Notify(n domain.Notice) { f(n) }
