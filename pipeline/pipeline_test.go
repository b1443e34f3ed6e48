package pipeline

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"chartdex/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.Chart
	closed      bool
	validateErr error
}

func (mw *mockWriter) Write(charts []*models.Chart) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	copyBatch := make([]*models.Chart, len(charts))
	copy(copyBatch, charts)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func testChart(id string) *models.Chart {
	return &models.Chart{
		ID:              id,
		Title:           "Bare your teeth",
		Artist:          "IRyS",
		BPM:             "157",
		Difficulties:    []float64{2.9, 4.6},
		Source:          "chartblog",
		OriginalPageURL: "http://example.test/post/" + id,
		UpdatedAt:       time.Now(),
	}
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)
	p.Start(1)

	valid := testChart("chartblog-768")
	invalid := testChart("chartblog-769")
	invalid.Title = ""
	duplicate := testChart("chartblog-768")

	if err := p.Process([]*models.Chart{valid, invalid, duplicate}); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written charts = %d, want 1", got)
	}

	metrics := p.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] == 0 {
		t.Fatalf("expected invalid_record validation error")
	}
	if validation["duplicate_id"] == 0 {
		t.Fatalf("expected duplicate_id validation error")
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)
	p.Start(1)

	charts := make([]*models.Chart, 0, 65)
	for i := 0; i < 65; i++ {
		charts = append(charts, testChart("chartblog-"+strconv.Itoa(i)))
	}
	if err := p.Process(charts); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)
	p.Start(2)

	charts := make([]*models.Chart, 0, 100)
	for i := 0; i < 100; i++ {
		charts = append(charts, testChart("chartblog-"+strconv.Itoa(i+200)))
	}
	if err := p.Process(charts); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written charts = %d, want 100", got)
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)
	p.Start(1)

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := p.Process([]*models.Chart{testChart("chartblog-1")}); err != ErrPipelineClosed {
		t.Fatalf("process after close = %v, want ErrPipelineClosed", err)
	}
}
