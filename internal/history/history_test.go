package history

import (
	"testing"
	"time"

	"pixelbatch/internal/batch"
	"pixelbatch/internal/convert"
	"pixelbatch/internal/format"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func settledItem(name string, status batch.Status) batch.Item {
	start := time.Now().Add(-200 * time.Millisecond)
	item := batch.Item{
		ID:        "item-" + name,
		FileName:  name,
		FileSize:  1000,
		Options:   convert.Options{Format: format.WebP, Quality: 80},
		Status:    status,
		StartTime: start,
		EndTime:   start.Add(150 * time.Millisecond),
	}
	if status == batch.StatusComplete {
		item.Result = &convert.Result{Data: []byte("out"), Size: 400, Width: 800, Height: 600}
	} else {
		item.Error = "decode failed"
	}
	return item
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)

	s.Record(settledItem("a.png", batch.StatusComplete))
	s.Record(settledItem("b.png", batch.StatusError))

	rows, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	byName := make(map[string]ConversionRecord)
	for _, r := range rows {
		byName[r.FileName] = r
	}
	a := byName["a.png"]
	if a.Status != string(batch.StatusComplete) {
		t.Errorf("a.png status = %s", a.Status)
	}
	if a.OutputSize != 400 || a.Width != 800 || a.Height != 600 {
		t.Errorf("a.png output = %d %dx%d", a.OutputSize, a.Width, a.Height)
	}
	if a.TargetFormat != "webp" {
		t.Errorf("a.png format = %s", a.TargetFormat)
	}
	if a.DurationMs != 150 {
		t.Errorf("a.png duration = %dms", a.DurationMs)
	}
	b := byName["b.png"]
	if b.Status != string(batch.StatusError) || b.Error != "decode failed" {
		t.Errorf("b.png = %+v", b)
	}
	if b.OutputSize != 0 {
		t.Errorf("b.png output size = %d", b.OutputSize)
	}
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		s.Record(settledItem("f.png", batch.StatusComplete))
	}
	rows, err := s.Recent(3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("rows = %d, want 3", len(rows))
	}
}

func TestSummary(t *testing.T) {
	s := openTestStore(t)
	s.Record(settledItem("a.png", batch.StatusComplete))
	s.Record(settledItem("b.png", batch.StatusComplete))
	s.Record(settledItem("c.png", batch.StatusError))

	sum, err := s.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Total != 3 || sum.Complete != 2 || sum.Errored != 1 {
		t.Errorf("counts = %+v", sum)
	}
	if sum.TotalInBytes != 3000 {
		t.Errorf("in bytes = %d", sum.TotalInBytes)
	}
	if sum.TotalOutBytes != 800 {
		t.Errorf("out bytes = %d", sum.TotalOutBytes)
	}
	if sum.TotalDurationMs != 450 {
		t.Errorf("duration = %dms", sum.TotalDurationMs)
	}
}

func TestSummaryEmpty(t *testing.T) {
	s := openTestStore(t)
	sum, err := s.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Total != 0 || sum.TotalInBytes != 0 || sum.TotalOutBytes != 0 {
		t.Errorf("empty summary = %+v", sum)
	}
}
