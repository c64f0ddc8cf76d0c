package history

import (
	"testing"
	"time"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndRecent(t *testing.T) {
	db := openTemp(t)
	base := time.Now().Add(-time.Hour)

	entries := []*Entry{
		{At: base, Provider: "openai", Model: "gpt-4o-mini", ImageBytes: 1200, Analyze: 800 * time.Millisecond, Response: "first", Success: true},
		{At: base.Add(time.Minute), Provider: "openai", Model: "gpt-4o-mini", Analyze: 1200 * time.Millisecond, Success: false, Error: "timeout"},
		{At: base.Add(2 * time.Minute), Provider: "groq", Model: "llama", Question: "what?", Analyze: 400 * time.Millisecond, Response: "third", Success: true},
	}
	for _, e := range entries {
		if err := db.Save(e); err != nil {
			t.Fatal(err)
		}
		if e.ID == 0 {
			t.Fatal("Save did not set ID")
		}
	}

	got, err := db.Recent(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Response != "third" || got[0].Question != "what?" || got[0].Provider != "groq" {
		t.Errorf("newest = %+v", got[0])
	}
	if got[1].Success || got[1].Error != "timeout" {
		t.Errorf("second = %+v", got[1])
	}
	if got[0].Analyze != 400*time.Millisecond {
		t.Errorf("Analyze = %v", got[0].Analyze)
	}
	if !got[0].At.Equal(entries[2].At.Truncate(time.Millisecond)) {
		t.Errorf("At = %v, want %v", got[0].At, entries[2].At)
	}
}

func TestSummary(t *testing.T) {
	db := openTemp(t)

	s, err := db.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if s.Total != 0 || s.AvgAnalyze != 0 {
		t.Errorf("empty summary = %+v", s)
	}

	db.Save(&Entry{Analyze: 100 * time.Millisecond, Success: true})
	db.Save(&Entry{Analyze: 300 * time.Millisecond, Success: true})
	db.Save(&Entry{Analyze: 5 * time.Second, Success: false, Error: "boom"})

	s, err = db.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if s.Total != 3 || s.Succeeded != 2 || s.AvgAnalyze != 200*time.Millisecond {
		t.Errorf("summary = %+v", s)
	}
}

func TestReopenKeepsRows(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	db.Save(&Entry{Response: "kept", Success: true})
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	got, _ := db.Recent(10)
	if len(got) != 1 || got[0].Response != "kept" {
		t.Errorf("after reopen: %+v", got)
	}
}
