package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatementTimerRecordsBothPhases(t *testing.T) {
	st := NewStatementTimer()
	st.StartQuery()
	time.Sleep(time.Millisecond)
	st.StopQuery()
	st.StartVerify()
	time.Sleep(time.Millisecond)
	st.StopVerify()

	if st.QueryElapsed() <= 0 {
		t.Fatalf("QueryElapsed() = %v, want > 0", st.QueryElapsed())
	}
	if st.VerifyElapsed() <= 0 {
		t.Fatalf("VerifyElapsed() = %v, want > 0", st.VerifyElapsed())
	}
}

func TestRecordCacheStatsSetsGauges(t *testing.T) {
	RecordCacheStats(1024, 7)
	if got := testutil.ToFloat64(CacheSizeBytes); got != 1024 {
		t.Fatalf("CacheSizeBytes = %v, want 1024", got)
	}
	if got := testutil.ToFloat64(CacheMaxHeight); got != 7 {
		t.Fatalf("CacheMaxHeight = %v, want 7", got)
	}
}
