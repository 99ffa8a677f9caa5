package result

import (
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lukemcguire/linkcrawl/config"
)

func TestCollectorOrdersBySeq(t *testing.T) {
	c := NewCollector()
	c.OnStart("http://example.test/", config.Default())

	var wg sync.WaitGroup
	for _, seq := range []uint64{3, 1, 4, 2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.OnResult(CheckResult{Seq: seq, Status: StatusOK})
		}()
	}
	wg.Wait()

	got := c.Results()
	if len(got) != 4 {
		t.Fatalf("len(Results()) = %d, want 4", len(got))
	}
	for i, r := range got {
		if r.Seq != uint64(i+1) {
			t.Errorf("Results()[%d].Seq = %d, want %d", i, r.Seq, i+1)
		}
	}
	if c.Root() != "http://example.test/" {
		t.Errorf("Root() = %q", c.Root())
	}
}

func TestCollectorFinish(t *testing.T) {
	c := NewCollector()
	if _, ok := c.Summary(); ok {
		t.Error("Summary() reported finished before OnFinish")
	}

	c.OnResult(CheckResult{Seq: 1, Status: StatusError})
	c.OnResult(CheckResult{Seq: 2, Status: StatusOK})
	c.OnFinish(Summary{Status: RunCompleted, Total: 2})
	c.OnFinish(Summary{Status: RunCompleted, Total: 2})

	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed after OnFinish")
	}
	sum, ok := c.Summary()
	if !ok || sum.Total != 2 {
		t.Errorf("Summary() = %+v, %v", sum, ok)
	}
	if broken := c.Broken(); len(broken) != 1 || broken[0].Seq != 1 {
		t.Errorf("Broken() = %+v", broken)
	}
}

func TestTee(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	s := Tee(a, b)

	s.OnStart("http://example.test/", config.Default())
	s.OnResult(CheckResult{Seq: 1})
	s.OnFinish(Summary{Status: RunCancelled})

	for i, c := range []*Collector{a, b} {
		if len(c.Results()) != 1 {
			t.Errorf("sink %d got %d results, want 1", i, len(c.Results()))
		}
		if sum, _ := c.Summary(); sum.Status != RunCancelled {
			t.Errorf("sink %d summary = %v", i, sum.Status)
		}
	}
}

func TestSummaryCount(t *testing.T) {
	var s Summary
	for _, st := range []Status{StatusOK, StatusOK, StatusWarning, StatusError, StatusTimeout} {
		s.Count(CheckResult{Status: st})
	}
	if s.Total != 5 || s.OK != 2 || s.Warnings != 1 || s.Errors != 1 || s.Timeouts != 1 {
		t.Errorf("Count() tallies = %+v", s)
	}
	if s.Broken() != 2 {
		t.Errorf("Broken() = %d, want 2", s.Broken())
	}
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewLogSink(zap.New(core), false)

	s.OnStart("http://example.test/", config.Default())
	s.OnResult(CheckResult{Seq: 1, URL: URLData{Normalized: "http://example.test/"}, Status: StatusOK})
	s.OnResult(CheckResult{Seq: 2, URL: URLData{Normalized: "http://example.test/x", Parent: "http://example.test/", Line: 3, Column: 7}, Status: StatusError, Failure: Kind4xx, StatusCode: 404})
	s.OnFinish(Summary{Status: RunCompleted, Total: 2})

	if n := logs.FilterMessage("check failed").Len(); n != 1 {
		t.Errorf("got %d 'check failed' entries, want 1", n)
	}
	if n := logs.FilterMessage("check ok").FilterLevelExact(zapcore.DebugLevel).Len(); n != 1 {
		t.Errorf("got %d debug 'check ok' entries, want 1", n)
	}
	failed := logs.FilterMessage("check failed").All()[0]
	if failed.ContextMap()["status_code"] != int64(404) {
		t.Errorf("status_code field = %v", failed.ContextMap()["status_code"])
	}
}
