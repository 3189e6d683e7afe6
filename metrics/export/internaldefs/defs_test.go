package internaldefs

import (
	"reflect"
	"testing"

	"github.com/MrEthical07/authflow"
)

func TestHistogramBoundsFollowLatencyBounds(t *testing.T) {
	want := []string{"0.05", "0.1", "0.25", "0.5", "1", "2.5", "5", "+Inf"}
	if !reflect.DeepEqual(HistogramBounds, want) {
		t.Fatalf("HistogramBounds = %v", HistogramBounds)
	}
	wantSuffix := []string{"0_05", "0_1", "0_25", "0_5", "1", "2_5", "5", "inf"}
	if !reflect.DeepEqual(HistogramBoundSuffix, wantSuffix) {
		t.Fatalf("HistogramBoundSuffix = %v", HistogramBoundSuffix)
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets([]uint64{1, 0, 2})
	want := []uint64{1, 1, 3, 3, 3, 3, 3, 3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("CumulativeBuckets = %v", got)
	}
	if got := CumulativeBuckets(nil); len(got) != len(HistogramBounds) || got[len(got)-1] != 0 {
		t.Fatalf("empty input: %v", got)
	}
}

func TestEveryCounterHasADef(t *testing.T) {
	seen := map[authflow.MetricID]bool{}
	for _, def := range CounterDefs {
		if seen[def.ID] {
			t.Fatalf("duplicate def for %d", def.ID)
		}
		seen[def.ID] = true
	}
	for id := authflow.MetricRegisterSuccess; id < authflow.MetricGatewayLatency; id++ {
		if !seen[id] {
			t.Fatalf("metric %d has no counter def", id)
		}
	}
}
