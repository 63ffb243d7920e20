package scrn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mdjhnsn/scrn/params"
	"github.com/mdjhnsn/scrn/utils"
)

// Grads mirrors the parameter set one-for-one. List and Network.ParamList
// return the matrices in the same fixed order so the optimizer can walk them
// pairwise.
type Grads struct {
	SlowEmb *mat.Dense
	FastEmb *mat.Dense

	SlowWbias *mat.Dense
	SlowBbias *mat.Dense
	SlowWout  *mat.Dense
	SlowBout  *mat.Dense

	FastWx   *mat.Dense
	FastWh   *mat.Dense
	FastBh   *mat.Dense
	FastWout *mat.Dense
	FastBout *mat.Dense
}

func NewGrads(cfg params.Config) *Grads {
	return &Grads{
		SlowEmb:   mat.NewDense(cfg.ContextWidth, cfg.VocabSize, nil),
		FastEmb:   mat.NewDense(cfg.FastEmbedWidth, cfg.VocabSize, nil),
		SlowWbias: mat.NewDense(cfg.FastEmbedWidth, cfg.ContextWidth, nil),
		SlowBbias: mat.NewDense(cfg.FastEmbedWidth, 1, nil),
		SlowWout:  mat.NewDense(cfg.VocabSize, cfg.ContextWidth, nil),
		SlowBout:  mat.NewDense(cfg.VocabSize, 1, nil),
		FastWx:    mat.NewDense(cfg.HiddenWidth, cfg.FastEmbedWidth, nil),
		FastWh:    mat.NewDense(cfg.HiddenWidth, cfg.HiddenWidth, nil),
		FastBh:    mat.NewDense(cfg.HiddenWidth, 1, nil),
		FastWout:  mat.NewDense(cfg.VocabSize, cfg.HiddenWidth, nil),
		FastBout:  mat.NewDense(cfg.VocabSize, 1, nil),
	}
}

func (g *Grads) List() []*mat.Dense {
	return []*mat.Dense{
		g.SlowEmb, g.FastEmb,
		g.SlowWbias, g.SlowBbias, g.SlowWout, g.SlowBout,
		g.FastWx, g.FastWh, g.FastBh, g.FastWout, g.FastBout,
	}
}

// ParamList returns the trainable matrices in the same order as Grads.List.
func (n *Network) ParamList() []*mat.Dense {
	return []*mat.Dense{
		n.SlowEmb, n.FastEmb,
		n.Slow.Wbias, n.Slow.Bbias, n.Slow.Wout, n.Slow.Bout,
		n.Fast.Wx, n.Fast.Wh, n.Fast.Bh, n.Fast.Wout, n.Fast.Bout,
	}
}

// Accumulate adds o into g, used to sum per-sample gradients over a batch.
func (g *Grads) Accumulate(o *Grads) {
	gs, os := g.List(), o.List()
	for i := range gs {
		gs[i].Add(gs[i], os[i])
	}
}

// Scale multiplies every gradient by s (batch averaging).
func (g *Grads) Scale(s float64) {
	for _, m := range g.List() {
		m.Scale(s, m)
	}
}

// Backward computes cross-entropy loss against the target id and the gradient
// of every parameter, reading only the forward trace. The model itself is not
// touched, so independent (Forward, Backward) pairs may run concurrently.
func (n *Network) Backward(cache *ForwardCache, target int) (*Grads, float64, error) {
	if target < 0 || target >= n.Cfg.VocabSize {
		return nil, 0, fmt.Errorf("%w: target id %d outside [0, %d)", ErrDimensionMismatch, target, n.Cfg.VocabSize)
	}

	cW := n.Cfg.ContextWidth
	dF := n.Cfg.FastEmbedWidth
	hW := n.Cfg.HiddenWidth
	T := len(cache.IDs)

	loss, dLogits := utils.CrossEntropyWithGrad(cache.Probs, target)

	ctxLast := utils.LastCol(cache.Ctx)
	hLast := utils.LastCol(cache.Hidden)

	g := &Grads{
		SlowEmb:  mat.NewDense(cW, n.Cfg.VocabSize, nil),
		FastEmb:  mat.NewDense(dF, n.Cfg.VocabSize, nil),
		SlowWout: utils.ToDense(utils.Dot(dLogits, ctxLast.T())),
		SlowBout: mat.DenseCopyOf(dLogits),
		FastWout: utils.ToDense(utils.Dot(dLogits, hLast.T())),
		FastBout: mat.DenseCopyOf(dLogits),
		FastWx:   mat.NewDense(hW, dF, nil),
		FastWh:   mat.NewDense(hW, hW, nil),
		FastBh:   mat.NewDense(hW, 1, nil),
	}

	// Both heads share the fused upstream gradient.
	dCtxLast := utils.ToDense(utils.Dot(n.Slow.Wout.T(), dLogits)) // (C x 1)
	carry := utils.ToDense(utils.Dot(n.Fast.Wout.T(), dLogits))   // (H x 1), grad into h_T

	// Backprop through time over the fast recurrence. carry holds the total
	// gradient into h_t at the top of each iteration.
	dX := mat.NewDense(dF, T, nil)
	for t := T - 1; t >= 0; t-- {
		dpre := mat.NewDense(hW, 1, nil)
		for i := 0; i < hW; i++ {
			h := cache.Hidden.At(i, t)
			dpre.Set(i, 0, carry.At(i, 0)*(1-h*h))
		}
		g.FastBh.Add(g.FastBh, dpre)

		xt := utils.ToDense(cache.X.Slice(0, dF, t, t+1))
		g.FastWx.Add(g.FastWx, utils.Dot(dpre, xt.T()))

		hprev := mat.NewDense(hW, 1, nil)
		if t > 0 {
			hprev = utils.ToDense(cache.Hidden.Slice(0, hW, t-1, t))
		}
		g.FastWh.Add(g.FastWh, utils.Dot(dpre, hprev.T()))

		dxt := utils.ToDense(utils.Dot(n.Fast.Wx.T(), dpre))
		for i := 0; i < dF; i++ {
			dX.Set(i, t, dxt.At(i, 0))
		}
		carry = utils.ToDense(utils.Dot(n.Fast.Wh.T(), dpre))
	}

	// The fast input splits additively: embedding column and bias column each
	// receive dX unchanged.
	for t, id := range cache.IDs {
		for i := 0; i < dF; i++ {
			g.FastEmb.Set(i, id, g.FastEmb.At(i, id)+dX.At(i, t))
		}
	}

	// Time-distributed bias projection: one weight matrix, summed over steps.
	g.SlowWbias = utils.ToDense(utils.Dot(dX, cache.Ctx.T()))
	g.SlowBbias = rowSumsVec(dX)

	// Context gradient: every step via the bias path, the last step also via
	// the slow head.
	dCtx := utils.ToDense(utils.Dot(n.Slow.Wbias.T(), dX)) // (C x T)
	for i := 0; i < cW; i++ {
		dCtx.Set(i, T-1, dCtx.At(i, T-1)+dCtxLast.At(i, 0))
	}
	dSlowE := n.Cell.Backward(dCtx)
	for t, id := range cache.IDs {
		for i := 0; i < cW; i++ {
			g.SlowEmb.Set(i, id, g.SlowEmb.At(i, id)+dSlowE.At(i, t))
		}
	}

	return g, loss, nil
}

func rowSumsVec(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		s := 0.0
		for j := 0; j < c; j++ {
			s += m.At(i, j)
		}
		out.Set(i, 0, s)
	}
	return out
}
