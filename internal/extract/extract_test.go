package extract

import (
	"errors"
	"testing"
)

func TestObject_PlainJSON(t *testing.T) {
	var out map[string]any
	err := Object(`{"date":"2025-06-01","link":"https://meet.google.com/abc"}`, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["date"] != "2025-06-01" {
		t.Errorf("date = %v", out["date"])
	}
}

func TestObject_SurroundedByProse(t *testing.T) {
	reply := "Sure! Here is the meeting I found:\n```json\n{\"time\":\"14:30\"}\n```\nLet me know if you need more."
	var out map[string]any
	if err := Object(reply, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["time"] != "14:30" {
		t.Errorf("time = %v", out["time"])
	}
}

func TestObject_NestedBraces(t *testing.T) {
	// Outer-first/outer-last spans the nested object whole.
	reply := `result: {"a":{"b":1},"c":2}`
	var out map[string]any
	if err := Object(reply, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["c"] != float64(2) {
		t.Errorf("c = %v", out["c"])
	}
}

func TestObject_NoBrackets(t *testing.T) {
	var out map[string]any
	err := Object("I could not find any meeting details.", &out)
	if !errors.Is(err, ErrNoSpan) {
		t.Errorf("err = %v, want ErrNoSpan", err)
	}
	if out != nil {
		t.Errorf("out should be untouched, got %v", out)
	}
}

func TestObject_InvalidInterior(t *testing.T) {
	var out map[string]any
	err := Object(`{"title": "unterminated}`, &out)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if errors.Is(err, ErrNoSpan) {
		t.Error("decode failure must be distinguishable from missing span")
	}
}

func TestArray_TaskList(t *testing.T) {
	reply := `Here are the tasks: [{"title":"Buy milk","due_date":"2025-05-01"},{"title":"File taxes","due_date":null}] done.`
	var out []struct {
		Title   string  `json:"title"`
		DueDate *string `json:"due_date"`
	}
	if err := Array(reply, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].Title != "Buy milk" || out[0].DueDate == nil {
		t.Errorf("first task = %+v", out[0])
	}
	if out[1].DueDate != nil {
		t.Errorf("second due_date should be nil")
	}
}

func TestArray_EmptyArraySentinel(t *testing.T) {
	var out []any
	if err := Array("[]", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("len = %d, want 0", len(out))
	}
}

func TestArray_UnbalancedBrackets(t *testing.T) {
	var out []any
	err := Array("numbers like ] these [ are not json", &out)
	if !errors.Is(err, ErrNoSpan) {
		t.Errorf("err = %v, want ErrNoSpan", err)
	}
}
