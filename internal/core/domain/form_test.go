package domain

import (
	"errors"
	"testing"
)

func TestFormRecordWith(t *testing.T) {
	var rec FormRecord
	if !rec.IsEmpty() {
		t.Fatal("zero record should be empty")
	}
	rec, err := rec.With(FieldName, "Bob")
	if err != nil {
		t.Fatalf("With(name): %v", err)
	}
	rec, err = rec.With(FieldEmail, "bob@x.com")
	if err != nil {
		t.Fatalf("With(email): %v", err)
	}
	if rec != (FormRecord{Name: "Bob", Email: "bob@x.com"}) {
		t.Fatalf("unexpected record %+v", rec)
	}
	same, err := rec.With("phone", "1")
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if same != rec {
		t.Fatalf("record changed on error: %+v", same)
	}
}
