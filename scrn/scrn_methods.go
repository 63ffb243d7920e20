package scrn

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mdjhnsn/scrn/params"
	"github.com/mdjhnsn/scrn/utils"
)

var (
	ErrDimensionMismatch      = errors.New("dimension mismatch")
	ErrDegenerateDistribution = errors.New("degenerate distribution")
)

// SlowBranch turns the context sequence into two things: a per-timestep
// additive bias for the fast branch (one shared affine map applied to every
// column) and a vocabulary logit vector from the final context only. The two
// projections read the same input but share no weights.
type SlowBranch struct {
	Wbias *mat.Dense // (Dfast x C) time-distributed bias projection
	Bbias *mat.Dense // (Dfast x 1)
	Wout  *mat.Dense // (V x C) final-context projection
	Bout  *mat.Dense // (V x 1)
}

// FastBranch is a plain single-layer tanh RNN over the summed input
// (fast embedding + slow bias). Only the final hidden state feeds the head.
type FastBranch struct {
	Wx   *mat.Dense // (H x Dfast)
	Wh   *mat.Dense // (H x H)
	Bh   *mat.Dense // (H x 1)
	Wout *mat.Dense // (V x H)
	Bout *mat.Dense // (V x 1)
}

// Network is the full two-branch model. Parameters live here and are read,
// never written, by forward passes; only the optimizer mutates them.
type Network struct {
	Cfg params.Config

	SlowEmb *mat.Dense // (C x V)
	FastEmb *mat.Dense // (Dfast x V)

	Cell *ContextCell
	Slow *SlowBranch
	Fast *FastBranch
}

// ForwardCache is the explicit trace of one forward pass: everything the
// backward pass needs, with no state left behind on the model.
type ForwardCache struct {
	IDs []int

	Ctx    *mat.Dense // (C x T) context states
	X      *mat.Dense // (Dfast x T) fast input: embedding + bias
	Hidden *mat.Dense // (H x T) fast hidden states

	SlowLogits *mat.Dense // (V x 1)
	FastLogits *mat.Dense // (V x 1)
	Logits     *mat.Dense // (V x 1) fused
	Probs      *mat.Dense // (V x 1) softmax output
}

func NewSlowBranch(contextWidth, fastWidth, vocabSize int) *SlowBranch {
	return &SlowBranch{
		Wbias: mat.NewDense(fastWidth, contextWidth, utils.RandomArray(fastWidth*contextWidth, float64(contextWidth))),
		Bbias: mat.NewDense(fastWidth, 1, nil),
		Wout:  mat.NewDense(vocabSize, contextWidth, utils.RandomArray(vocabSize*contextWidth, float64(contextWidth))),
		Bout:  mat.NewDense(vocabSize, 1, nil),
	}
}

func NewFastBranch(fastWidth, hiddenWidth, vocabSize int) *FastBranch {
	return &FastBranch{
		Wx:   mat.NewDense(hiddenWidth, fastWidth, utils.RandomArray(hiddenWidth*fastWidth, float64(fastWidth))),
		Wh:   mat.NewDense(hiddenWidth, hiddenWidth, utils.RandomArray(hiddenWidth*hiddenWidth, float64(hiddenWidth))),
		Bh:   mat.NewDense(hiddenWidth, 1, nil),
		Wout: mat.NewDense(vocabSize, hiddenWidth, utils.RandomArray(vocabSize*hiddenWidth, float64(hiddenWidth))),
		Bout: mat.NewDense(vocabSize, 1, nil),
	}
}

// NewNetwork validates the configuration once and builds freshly initialized
// parameters. This is the single construction path; nothing else validates.
func NewNetwork(cfg params.Config) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cell, err := NewContextCell(cfg.DecayAlpha)
	if err != nil {
		return nil, err
	}
	return &Network{
		Cfg:     cfg,
		SlowEmb: mat.NewDense(cfg.ContextWidth, cfg.VocabSize, utils.RandomArray(cfg.ContextWidth*cfg.VocabSize, float64(cfg.ContextWidth))),
		FastEmb: mat.NewDense(cfg.FastEmbedWidth, cfg.VocabSize, utils.RandomArray(cfg.FastEmbedWidth*cfg.VocabSize, float64(cfg.FastEmbedWidth))),
		Cell:    cell,
		Slow:    NewSlowBranch(cfg.ContextWidth, cfg.FastEmbedWidth, cfg.VocabSize),
		Fast:    NewFastBranch(cfg.FastEmbedWidth, cfg.HiddenWidth, cfg.VocabSize),
	}, nil
}

// BiasSeq applies the shared bias projection independently to every context
// column. Pure map over timesteps, no recurrence.
func (s *SlowBranch) BiasSeq(ctx *mat.Dense) *mat.Dense {
	return utils.AddBias(utils.ToDense(utils.Dot(s.Wbias, ctx)), s.Bbias)
}

// Logits projects the final context state to vocabulary logits.
func (s *SlowBranch) Logits(ctxLast *mat.Dense) *mat.Dense {
	return utils.ToDense(utils.Add(utils.Dot(s.Wout, ctxLast), s.Bout))
}

// Forward runs the recurrence over the input sequence (Dfast x T) and returns
// every hidden state (H x T). Downstream consumers read only the last column;
// the rest are kept for backpropagation through time.
func (f *FastBranch) Forward(x *mat.Dense) *mat.Dense {
	dIn, T := x.Dims()
	hw, _ := f.Wx.Dims()
	states := mat.NewDense(hw, T, nil)
	h := mat.NewDense(hw, 1, nil)
	for t := 0; t < T; t++ {
		xt := utils.ToDense(x.Slice(0, dIn, t, t+1))
		pre := utils.Add(utils.Add(utils.Dot(f.Wx, xt), utils.Dot(f.Wh, h)), f.Bh)
		h = utils.ToDense(utils.Apply(utils.TanhApply, pre))
		for i := 0; i < hw; i++ {
			states.Set(i, t, h.At(i, 0))
		}
	}
	return states
}

// Logits projects the final hidden state to vocabulary logits.
func (f *FastBranch) Logits(hLast *mat.Dense) *mat.Dense {
	return utils.ToDense(utils.Add(utils.Dot(f.Wout, hLast), f.Bout))
}

// FuseLogits is the fusion head: both branches vote with equal fixed weight.
// There is no learned combination; the sum is softmaxed into the next-token
// distribution.
func FuseLogits(slowLogits, fastLogits *mat.Dense) (logits, probs *mat.Dense) {
	logits = utils.ToDense(utils.Add(slowLogits, fastLogits))
	probs = utils.ColVectorSoftmax(logits)
	return logits, probs
}

// Forward runs the whole pipeline on a window of token ids and returns the
// explicit trace. It is a pure function of (parameters, ids): same inputs and
// same parameter snapshot always produce the same trace.
func (n *Network) Forward(ids []int) (*ForwardCache, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty input sequence", ErrDimensionMismatch)
	}
	if err := n.checkShapes(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if id < 0 || id >= n.Cfg.VocabSize {
			return nil, fmt.Errorf("%w: token id %d outside [0, %d)", ErrDimensionMismatch, id, n.Cfg.VocabSize)
		}
	}

	slowE := embedColumns(n.SlowEmb, ids)
	ctx := n.Cell.Forward(slowE)
	bias := n.Slow.BiasSeq(ctx)
	x := utils.ToDense(utils.Add(embedColumns(n.FastEmb, ids), bias))
	hidden := n.Fast.Forward(x)

	slowLogits := n.Slow.Logits(utils.LastCol(ctx))
	fastLogits := n.Fast.Logits(utils.LastCol(hidden))
	logits, probs := FuseLogits(slowLogits, fastLogits)

	return &ForwardCache{
		IDs:        append([]int(nil), ids...),
		Ctx:        ctx,
		X:          x,
		Hidden:     hidden,
		SlowLogits: slowLogits,
		FastLogits: fastLogits,
		Logits:     logits,
		Probs:      probs,
	}, nil
}

// Predict returns only the next-token distribution (V x 1) for a window.
func (n *Network) Predict(ids []int) (*mat.Dense, error) {
	cache, err := n.Forward(ids)
	if err != nil {
		return nil, err
	}
	return cache.Probs, nil
}

// embedColumns gathers embedding table columns into a (d x T) sequence.
func embedColumns(emb *mat.Dense, ids []int) *mat.Dense {
	d, _ := emb.Dims()
	out := mat.NewDense(d, len(ids), nil)
	for t, id := range ids {
		for i := 0; i < d; i++ {
			out.Set(i, t, emb.At(i, id))
		}
	}
	return out
}

// checkShapes verifies every parameter matrix against the declared
// configuration. Runs on each forward pass so a checkpoint loaded with the
// wrong config fails loudly on first use instead of producing garbage.
func (n *Network) checkShapes() error {
	c := n.Cfg
	checks := []struct {
		name string
		m    *mat.Dense
		r, q int
	}{
		{"slow embedding", n.SlowEmb, c.ContextWidth, c.VocabSize},
		{"fast embedding", n.FastEmb, c.FastEmbedWidth, c.VocabSize},
		{"slow bias projection", n.Slow.Wbias, c.FastEmbedWidth, c.ContextWidth},
		{"slow bias offset", n.Slow.Bbias, c.FastEmbedWidth, 1},
		{"slow vocab projection", n.Slow.Wout, c.VocabSize, c.ContextWidth},
		{"slow vocab offset", n.Slow.Bout, c.VocabSize, 1},
		{"fast input weights", n.Fast.Wx, c.HiddenWidth, c.FastEmbedWidth},
		{"fast recurrent weights", n.Fast.Wh, c.HiddenWidth, c.HiddenWidth},
		{"fast hidden offset", n.Fast.Bh, c.HiddenWidth, 1},
		{"fast vocab projection", n.Fast.Wout, c.VocabSize, c.HiddenWidth},
		{"fast vocab offset", n.Fast.Bout, c.VocabSize, 1},
	}
	for _, ck := range checks {
		if ck.m == nil {
			return fmt.Errorf("%w: %s is missing", ErrDimensionMismatch, ck.name)
		}
		r, q := ck.m.Dims()
		if r != ck.r || q != ck.q {
			return fmt.Errorf("%w: %s is (%d x %d), configuration requires (%d x %d)",
				ErrDimensionMismatch, ck.name, r, q, ck.r, ck.q)
		}
	}
	return nil
}
