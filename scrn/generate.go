package scrn

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/mdjhnsn/scrn/params"
	"github.com/mdjhnsn/scrn/utils"
)

// Policy selects how the decoder turns a distribution into a token.
type Policy string

const (
	// PolicyGreedy takes the argmax of the raw distribution.
	PolicyGreedy Policy = "greedy"
	// PolicySample zeroes the pad mass, renormalizes and draws one token.
	PolicySample Policy = "sample"
)

// DecodeState is the decoder's phase: generating or finished.
type DecodeState int

const (
	Running DecodeState = iota
	Done
)

const (
	DoneReasonStop   = "stop"   // end sentinel produced
	DoneReasonLength = "length" // max step budget exhausted (truncation, not an error)
)

var errDecoderDone = errors.New("decode step on a finished decoder")

// Decoder extends a token sequence autoregressively, one full forward pass
// per step: pad the history to the training window, predict, select, append.
// Every step recomputes the whole window; with the step budget tied to the
// window length that cost stays bounded.
type Decoder struct {
	net      *Network
	policy   Policy
	maxSteps int
	rng      *rand.Rand

	seq     []int
	seedLen int
	steps   int
	state   DecodeState
	reason  string
}

// NewDecoder starts a decode from seed (a nil or empty seed means just the
// start sentinel). maxSteps <= 0 defaults to the training window length. The
// sampling policy draws from rng and never from process-global state.
func (n *Network) NewDecoder(seed []int, policy Policy, maxSteps int, rng *rand.Rand) (*Decoder, error) {
	switch policy {
	case PolicyGreedy, PolicySample:
	default:
		return nil, fmt.Errorf("unknown decode policy %q", policy)
	}
	if policy == PolicySample && rng == nil {
		return nil, errors.New("sampling policy requires a random source")
	}
	if maxSteps <= 0 {
		maxSteps = n.Cfg.SeqLen
	}
	if len(seed) == 0 {
		seed = []int{params.BosID}
	}
	for _, id := range seed {
		if id < 0 || id >= n.Cfg.VocabSize {
			return nil, fmt.Errorf("%w: seed id %d outside [0, %d)", ErrDimensionMismatch, id, n.Cfg.VocabSize)
		}
	}
	return &Decoder{
		net:      n,
		policy:   policy,
		maxSteps: maxSteps,
		rng:      rng,
		seq:      append([]int(nil), seed...),
		seedLen:  len(seed),
	}, nil
}

func (d *Decoder) State() DecodeState { return d.state }

// DoneReason reports why decoding finished: DoneReasonStop or
// DoneReasonLength. Empty while running.
func (d *Decoder) DoneReason() string { return d.reason }

// Steps returns how many tokens have been generated so far.
func (d *Decoder) Steps() int { return d.steps }

// Seq returns the raw sequence, seed included. The end sentinel appears here
// exactly when decoding stopped because the model produced it.
func (d *Decoder) Seq() []int {
	return append([]int(nil), d.seq...)
}

// Output returns the sequence with the leading start sentinel and the
// trailing end sentinel (if present) stripped.
func (d *Decoder) Output() []int {
	out := append([]int(nil), d.seq...)
	if len(out) > 0 && out[0] == params.BosID {
		out = out[1:]
	}
	if len(out) > 0 && out[len(out)-1] == params.EosID {
		out = out[:len(out)-1]
	}
	return out
}

// Generated returns only the tokens produced by Step calls, without the
// seed and without a trailing end sentinel.
func (d *Decoder) Generated() []int {
	out := append([]int(nil), d.seq[d.seedLen:]...)
	if len(out) > 0 && out[len(out)-1] == params.EosID {
		out = out[:len(out)-1]
	}
	return out
}

// Step runs one decode transition and returns the chosen token id. Calling
// Step on a finished decoder is an error.
func (d *Decoder) Step() (int, error) {
	if d.state == Done {
		return 0, errDecoderDone
	}
	window := utils.LeftPad(d.seq, d.net.Cfg.SeqLen, params.PadID)
	probs, err := d.net.Predict(window)
	if err != nil {
		return 0, err
	}

	var next int
	switch d.policy {
	case PolicyGreedy:
		next = utils.ArgmaxVec(probs)
	case PolicySample:
		next, err = sampleMasked(probs, params.PadID, d.rng)
		if err != nil {
			return 0, err
		}
	}

	d.seq = append(d.seq, next)
	d.steps++
	switch {
	case next == params.EosID:
		d.state = Done
		d.reason = DoneReasonStop
	case d.steps >= d.maxSteps:
		d.state = Done
		d.reason = DoneReasonLength
	}
	return next, nil
}

// Generate drives a decoder to completion and returns the stripped output.
func (n *Network) Generate(seed []int, policy Policy, maxSteps int, rng *rand.Rand) ([]int, error) {
	d, err := n.NewDecoder(seed, policy, maxSteps, rng)
	if err != nil {
		return nil, err
	}
	for d.State() == Running {
		if _, err := d.Step(); err != nil {
			return nil, err
		}
	}
	return d.Output(), nil
}

// sampleMasked draws one id from probs with maskID's mass removed and the
// rest renormalized. Scaling the uniform draw by the remaining mass is the
// same draw as renormalizing every entry first.
func sampleMasked(probs *mat.Dense, maskID int, rng *rand.Rand) (int, error) {
	r, c := probs.Dims()
	if c != 1 {
		panic("sampleMasked expects a column vector")
	}
	sum := 0.0
	for i := 0; i < r; i++ {
		if i == maskID {
			continue
		}
		sum += probs.At(i, 0)
	}
	if sum <= 1e-12 {
		return 0, fmt.Errorf("%w: probability mass %.3g left after masking pad", ErrDegenerateDistribution, sum)
	}
	u := rng.Float64() * sum
	cum := 0.0
	last := -1
	for i := 0; i < r; i++ {
		if i == maskID {
			continue
		}
		cum += probs.At(i, 0)
		last = i
		if u < cum {
			return i, nil
		}
	}
	return last, nil // float round-off fallback
}
