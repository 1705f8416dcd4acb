package service

import (
	"context"
	"fmt"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/Wyydra/agentcall/internal/core/port"
)

// FormSync replicates the shared form record over the relay channel.
// It is not safe for concurrent use; the Coordinator serializes access.
type FormSync struct {
	channel port.Channel
	record  domain.FormRecord
	frozen  bool
}

func NewFormSync(channel port.Channel) *FormSync {
	return &FormSync{channel: channel}
}

func (f *FormSync) Record() domain.FormRecord {
	return f.record
}

// Frozen reports whether the record was submitted and awaits a decision.
func (f *FormSync) Frozen() bool {
	return f.frozen
}

// Edit merges one field and broadcasts the whole record.
func (f *FormSync) Edit(ctx context.Context, field, value string) error {
	if f.frozen {
		return domain.ErrFormFrozen
	}
	rec, err := f.record.With(field, value)
	if err != nil {
		return err
	}
	f.record = rec
	return emit(ctx, f.channel, domain.EventFormUpdate, rec)
}

// ApplyRemote replaces the record wholesale. Last writer wins.
func (f *FormSync) ApplyRemote(rec domain.FormRecord) {
	f.record = rec
}

// Submit broadcasts the record for review and freezes local edits. The
// record stays visible locally.
func (f *FormSync) Submit(ctx context.Context) error {
	if err := emit(ctx, f.channel, domain.EventFormSubmit, f.record); err != nil {
		return err
	}
	f.frozen = true
	return nil
}

func (f *FormSync) Unfreeze() {
	f.frozen = false
}

// Clear resets to the empty record without telling the remote side.
func (f *FormSync) Clear() {
	f.record = domain.FormRecord{}
	f.frozen = false
}

// Reset clears the record on both sides.
func (f *FormSync) Reset(ctx context.Context) error {
	f.Clear()
	return emit(ctx, f.channel, domain.EventClearForm, nil)
}

func emit(ctx context.Context, ch port.Channel, name domain.EventName, payload any) error {
	ev, err := domain.NewEvent(name, payload)
	if err != nil {
		return err
	}
	if err := ch.Emit(ctx, ev); err != nil {
		return fmt.Errorf("emit %s: %w", name, err)
	}
	return nil
}
