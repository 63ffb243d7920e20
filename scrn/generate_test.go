package scrn

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/mdjhnsn/scrn/params"
)

// zeroedNetwork builds a network with every parameter zeroed so tests can rig
// exactly the weights they need.
func zeroedNetwork(t *testing.T, cfg params.Config) *Network {
	t.Helper()
	net, err := NewNetwork(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range net.ParamList() {
		p.Zero()
	}
	return net
}

func TestDecoderTruncatesAtMaxSteps(t *testing.T) {
	// id 4 is the only non-special token with V=5; bias the fast head to it.
	net := zeroedNetwork(t, testConfig(5, 2, 3, 2, 4, 0.5))
	net.Fast.Bout.Set(4, 0, 5)

	d, err := net.NewDecoder([]int{params.BosID}, PolicyGreedy, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.State() != Running {
		t.Fatal("fresh decoder must be running")
	}

	id, err := d.Step()
	if err != nil || id != 4 {
		t.Fatalf("step 1: got (%d, %v), want token 4", id, err)
	}
	if d.State() != Running {
		t.Fatal("one step in, decoder must still be running")
	}

	id, err = d.Step()
	if err != nil || id != 4 {
		t.Fatalf("step 2: got (%d, %v), want token 4", id, err)
	}
	if d.State() != Done {
		t.Fatal("step budget exhausted, decoder must be done")
	}
	if d.DoneReason() != DoneReasonLength {
		t.Fatalf("done reason %q, want %q", d.DoneReason(), DoneReasonLength)
	}

	if diff := cmp.Diff([]int{4, 4}, d.Output()); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
	for _, id := range d.Seq() {
		if id == params.EosID {
			t.Fatal("truncated decode must not contain the end sentinel")
		}
	}

	if _, err := d.Step(); err == nil {
		t.Fatal("stepping a finished decoder must fail")
	}
}

func TestDecoderStopsOnEndSentinel(t *testing.T) {
	// The slow context accumulates evidence for token 4; once two copies are
	// in the window the end-sentinel logit crosses the constant token logit:
	//   logit(4)   = 1
	//   logit(eos) = 3*ctx[0] - 1  with ctx[0] = 0, 0.5, 0.75, ...
	net := zeroedNetwork(t, testConfig(5, 2, 3, 2, 4, 0.5))
	net.SlowEmb.Set(0, 4, 1)
	net.Slow.Bout.Set(4, 0, 1)
	net.Slow.Wout.Set(params.EosID, 0, 3)
	net.Slow.Bout.Set(params.EosID, 0, -1)

	d, err := net.NewDecoder([]int{params.BosID}, PolicyGreedy, 4, nil)
	if err != nil {
		t.Fatal(err)
	}

	var states []DecodeState
	var got []int
	for d.State() == Running {
		id, err := d.Step()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, id)
		states = append(states, d.State())
	}

	if diff := cmp.Diff([]int{4, 4, params.EosID}, got); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]DecodeState{Running, Running, Done}, states); diff != "" {
		t.Fatalf("state transitions mismatch (-want +got):\n%s", diff)
	}
	if d.DoneReason() != DoneReasonStop {
		t.Fatalf("done reason %q, want %q", d.DoneReason(), DoneReasonStop)
	}

	// Raw sequence keeps the sentinel that stopped it; output strips it
	// along with the leading start sentinel.
	if diff := cmp.Diff([]int{params.BosID, 4, 4, params.EosID}, d.Seq()); diff != "" {
		t.Fatalf("raw sequence mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4, 4}, d.Output()); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateGreedyDeterministic(t *testing.T) {
	net, err := NewNetwork(testConfig(12, 3, 4, 5, 8, 0.8))
	if err != nil {
		t.Fatal(err)
	}
	seed := []int{params.BosID, 5, 7}
	a, err := net.Generate(seed, PolicyGreedy, 8, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := net.Generate(seed, PolicyGreedy, 8, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("greedy decode must be reproducible (-first +second):\n%s", diff)
	}
}

func TestSamplingNeverEmitsPad(t *testing.T) {
	// Pad holds most of the raw mass; masking must make it unreachable.
	net := zeroedNetwork(t, testConfig(5, 2, 3, 2, 4, 0.5))
	net.Fast.Bout.Set(params.PadID, 0, 4)
	net.Fast.Bout.Set(4, 0, 1)

	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 500; trial++ {
		d, err := net.NewDecoder([]int{params.BosID}, PolicySample, 1, rng)
		if err != nil {
			t.Fatal(err)
		}
		id, err := d.Step()
		if err != nil {
			t.Fatal(err)
		}
		if id == params.PadID {
			t.Fatalf("trial %d: sampled the pad token", trial)
		}
	}
}

func TestSamplingMatchesRenormalizedDistribution(t *testing.T) {
	// Raw mass: pad 0.5, then 0.25/0.125/0.0625/0.0625. After masking pad the
	// renormalized target is 0.5/0.25/0.125/0.125 over ids 1..4.
	probs := mat.NewDense(5, 1, []float64{0.5, 0.25, 0.125, 0.0625, 0.0625})
	rng := rand.New(rand.NewPCG(3, 9))

	const trials = 20000
	counts := make([]float64, 5)
	for i := 0; i < trials; i++ {
		id, err := sampleMasked(probs, params.PadID, rng)
		if err != nil {
			t.Fatal(err)
		}
		counts[id]++
	}
	if counts[params.PadID] != 0 {
		t.Fatalf("pad drawn %v times", counts[params.PadID])
	}

	expected := []float64{0.5, 0.25, 0.125, 0.125}
	obs := counts[1:]
	exp := make([]float64, len(expected))
	for i, p := range expected {
		exp[i] = p * trials
		if math.Abs(obs[i]/trials-p) > 0.02 {
			t.Fatalf("id %d: empirical frequency %.4f, want %.4f +-0.02", i+1, obs[i]/trials, p)
		}
	}
	// Generous chi-square bound; df=3.
	if x2 := stat.ChiSquare(obs, exp); x2 > 40 {
		t.Fatalf("chi-square statistic %.2f too large for a faithful sampler", x2)
	}
}

func TestSamplingDegenerateDistribution(t *testing.T) {
	probs := mat.NewDense(5, 1, []float64{1, 0, 0, 0, 0})
	rng := rand.New(rand.NewPCG(1, 2))
	if _, err := sampleMasked(probs, params.PadID, rng); !errors.Is(err, ErrDegenerateDistribution) {
		t.Fatalf("want degenerate distribution error, got %v", err)
	}

	// Same condition reached through the decoder: pad so dominant that every
	// other probability underflows to zero.
	net := zeroedNetwork(t, testConfig(5, 2, 3, 2, 4, 0.5))
	net.Fast.Bout.Set(params.PadID, 0, 800)
	d, err := net.NewDecoder([]int{params.BosID}, PolicySample, 2, rng)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Step(); !errors.Is(err, ErrDegenerateDistribution) {
		t.Fatalf("want degenerate distribution error from decoder, got %v", err)
	}
}

func TestDecoderArgumentValidation(t *testing.T) {
	net, err := NewNetwork(testConfig(8, 2, 3, 2, 4, 0.5))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := net.NewDecoder([]int{params.BosID}, Policy("beam"), 4, nil); err == nil {
		t.Fatal("unknown policy must be rejected")
	}
	if _, err := net.NewDecoder([]int{params.BosID}, PolicySample, 4, nil); err == nil {
		t.Fatal("sampling without a random source must be rejected")
	}
	if _, err := net.NewDecoder([]int{42}, PolicyGreedy, 4, nil); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("out-of-range seed id: want dimension mismatch, got %v", err)
	}
}

func TestGenerateDefaultsEmptySeedToStartSentinel(t *testing.T) {
	net := zeroedNetwork(t, testConfig(5, 2, 3, 2, 4, 0.5))
	net.Fast.Bout.Set(4, 0, 5)
	out, err := net.Generate(nil, PolicyGreedy, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{4, 4, 4}, out); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
	for _, id := range out {
		if id == params.BosID {
			t.Fatal("output must not contain the start sentinel")
		}
	}
}

func TestDecoderGeneratedExcludesSeed(t *testing.T) {
	net := zeroedNetwork(t, testConfig(5, 2, 3, 2, 4, 0.5))
	net.Fast.Bout.Set(4, 0, 5)

	d, err := net.NewDecoder([]int{params.BosID, 4}, PolicyGreedy, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	for d.State() == Running {
		if _, err := d.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if diff := cmp.Diff([]int{4, 4, 4}, d.Output()); diff != "" {
		t.Fatalf("output keeps the seed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4, 4}, d.Generated()); diff != "" {
		t.Fatalf("generated must be continuation only (-want +got):\n%s", diff)
	}
}
