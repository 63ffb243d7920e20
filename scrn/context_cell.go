package scrn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mdjhnsn/scrn/params"
)

// ContextCell maintains a slowly-changing summary of the input sequence via
// exponential smoothing:
//
//	c_t = (1 - alpha)*e_t + alpha*c_{t-1},  c_0 = 0
//
// The mixing coefficient is a fixed scalar, shared across every position and
// every unit. There is no gate and no recurrence matrix; each unit smooths its
// own input independently, so the context width equals the input width.
type ContextCell struct {
	alpha float64
}

// NewContextCell validates the decay constant once, before any forward pass.
func NewContextCell(alpha float64) (*ContextCell, error) {
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("%w: decay alpha %v outside [0,1]", params.ErrInvalidConfiguration, alpha)
	}
	return &ContextCell{alpha: alpha}, nil
}

func (c *ContextCell) Alpha() float64 { return c.alpha }

// Forward smooths an embedding sequence (C x T) into the context sequence
// (C x T). Each output column is a convex combination of the matching input
// column and the previous context, so no entry can outgrow its inputs.
func (c *ContextCell) Forward(e *mat.Dense) *mat.Dense {
	r, T := e.Dims()
	out := mat.NewDense(r, T, nil)
	for t := 0; t < T; t++ {
		for i := 0; i < r; i++ {
			prev := 0.0
			if t > 0 {
				prev = out.At(i, t-1)
			}
			out.Set(i, t, (1-c.alpha)*e.At(i, t)+c.alpha*prev)
		}
	}
	return out
}

// Backward maps upstream gradients on every context state (C x T) to
// gradients on the input embeddings (C x T). The recurrence is linear, so the
// carried gradient just decays by alpha per step going backward in time.
func (c *ContextCell) Backward(dCtx *mat.Dense) *mat.Dense {
	r, T := dCtx.Dims()
	dE := mat.NewDense(r, T, nil)
	acc := make([]float64, r)
	for t := T - 1; t >= 0; t-- {
		for i := 0; i < r; i++ {
			acc[i] += dCtx.At(i, t)
			dE.Set(i, t, (1-c.alpha)*acc[i])
			acc[i] *= c.alpha
		}
	}
	return dE
}
