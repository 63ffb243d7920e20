package IO

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMakeWindowSamplesPadsAndTargets(t *testing.T) {
	// <bos> a b <eos> with a=5, b=6
	seq := []int{1, 5, 6, 2}
	got := MakeWindowSamples(seq, 4)
	want := []Sample{
		{Window: []int{0, 0, 0, 1}, Target: 5},
		{Window: []int{0, 0, 1, 5}, Target: 6},
		{Window: []int{0, 1, 5, 6}, Target: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("window samples:\n%s", diff)
	}
}

func TestMakeWindowSamplesKeepsMostRecentHistory(t *testing.T) {
	seq := []int{1, 4, 5, 6, 7, 2}
	got := MakeWindowSamples(seq, 3)
	if len(got) != 5 {
		t.Fatalf("got %d samples, want 5", len(got))
	}
	last := got[len(got)-1]
	if diff := cmp.Diff(Sample{Window: []int{5, 6, 7}, Target: 2}, last); diff != "" {
		t.Fatalf("long history should keep the newest tokens:\n%s", diff)
	}
}

func TestMakeWindowSamplesNeedsTwoTokens(t *testing.T) {
	if got := MakeWindowSamples([]int{1}, 4); got != nil {
		t.Errorf("single token: got %v, want nil", got)
	}
	if got := MakeWindowSamples(nil, 4); got != nil {
		t.Errorf("empty: got %v, want nil", got)
	}
}

func TestBuildDatasetSkipsUnencodableLines(t *testing.T) {
	encode := func(s string) []int {
		if s == "bad" {
			return nil
		}
		return []int{1, 7, 2}
	}
	got := BuildDataset([]string{"ok", "bad", "ok"}, encode, 4)
	// two good lines, two samples each
	if len(got) != 4 {
		t.Fatalf("got %d samples, want 4", len(got))
	}
}

func TestSplitTrainValPreservesEverySample(t *testing.T) {
	samples := make([]Sample, 10)
	for i := range samples {
		samples[i] = Sample{Window: []int{0, 0, 0, 1}, Target: i}
	}

	train, val := SplitTrainVal(samples, 0.3, rand.New(rand.NewPCG(1, 2)))
	if len(train) != 7 || len(val) != 3 {
		t.Fatalf("split sizes %d/%d, want 7/3", len(train), len(val))
	}

	var targets []int
	for _, s := range train {
		targets = append(targets, s.Target)
	}
	for _, s := range val {
		targets = append(targets, s.Target)
	}
	sort.Ints(targets)
	for i, tgt := range targets {
		if tgt != i {
			t.Fatalf("split lost or duplicated samples: %v", targets)
		}
	}
}

func TestSplitTrainValDeterministicForSeed(t *testing.T) {
	samples := make([]Sample, 16)
	for i := range samples {
		samples[i] = Sample{Window: []int{i}, Target: i}
	}
	train1, val1 := SplitTrainVal(samples, 0.25, rand.New(rand.NewPCG(9, 9)))
	train2, val2 := SplitTrainVal(samples, 0.25, rand.New(rand.NewPCG(9, 9)))
	if diff := cmp.Diff(train1, train2); diff != "" {
		t.Fatalf("train split not reproducible:\n%s", diff)
	}
	if diff := cmp.Diff(val1, val2); diff != "" {
		t.Fatalf("val split not reproducible:\n%s", diff)
	}
}

func TestSplitTrainValAlwaysKeepsATrainSample(t *testing.T) {
	samples := []Sample{
		{Window: []int{1}, Target: 2},
		{Window: []int{2}, Target: 3},
	}
	train, val := SplitTrainVal(samples, 1.0, rand.New(rand.NewPCG(3, 4)))
	if len(train) != 1 || len(val) != 1 {
		t.Fatalf("split sizes %d/%d, want 1/1", len(train), len(val))
	}
}

func TestBatchesCoverAllSamples(t *testing.T) {
	samples := make([]Sample, 7)
	got := Batches(samples, 3)
	sizes := make([]int, len(got))
	for i, b := range got {
		sizes[i] = len(b)
	}
	if diff := cmp.Diff([]int{3, 3, 1}, sizes); diff != "" {
		t.Fatalf("batch sizes:\n%s", diff)
	}

	// a non-positive batch size degrades to one sample per batch
	if got := Batches(samples, 0); len(got) != 7 {
		t.Fatalf("batchSize 0: got %d batches, want 7", len(got))
	}
}
