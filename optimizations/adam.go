package optimizations

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// AdamUpdateInPlace applies one AdamW step to a single parameter matrix:
// p -= lr * (mhat/(sqrt(vhat)+eps) + wd*p) with bias correction.
func AdamUpdateInPlace(
	p, g, m, v *mat.Dense,
	t int,
	lr, beta1, beta2, eps, weightDecay float64,
) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("adamUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := m.Dims(); mr != pr || mc != pc {
		panic("adamUpdateInPlace: m shape mismatch")
	}
	if vr, vc := v.Dims(); vr != pr || vc != pc {
		panic("adamUpdateInPlace: v shape mismatch")
	}
	b1t := math.Pow(beta1, float64(t))
	b2t := math.Pow(beta2, float64(t))
	c1 := 1.0 / (1.0 - b1t)
	c2 := 1.0 / (1.0 - b2t)
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			gij := g.At(i, j)
			mij := beta1*m.At(i, j) + (1.0-beta1)*gij
			vij := beta2*v.At(i, j) + (1.0-beta2)*gij*gij
			mhat := mij * c1
			vhat := vij * c2
			denom := math.Sqrt(vhat) + eps
			update := mhat/denom + weightDecay*p.At(i, j)
			m.Set(i, j, mij)
			v.Set(i, j, vij)
			p.Set(i, j, p.At(i, j)-lr*update)
		}
	}
}

// AdamState holds first/second moments for an ordered parameter list plus the
// shared step counter. Built once against the model's ParamList and reused for
// every step; no package-level optimizer state.
type AdamState struct {
	M []*mat.Dense
	V []*mat.Dense
	T int
}

func NewAdamState(paramList []*mat.Dense) *AdamState {
	st := &AdamState{
		M: make([]*mat.Dense, len(paramList)),
		V: make([]*mat.Dense, len(paramList)),
	}
	for i, p := range paramList {
		r, c := p.Dims()
		st.M[i] = mat.NewDense(r, c, nil)
		st.V[i] = mat.NewDense(r, c, nil)
	}
	return st
}

// Step advances the counter and updates every parameter against its gradient.
// params and grads must follow the order the state was built with.
func (st *AdamState) Step(paramList, gradList []*mat.Dense, lr, beta1, beta2, eps, weightDecay float64) {
	if len(paramList) != len(st.M) || len(gradList) != len(st.M) {
		panic("adam step: parameter list length drifted from optimizer state")
	}
	st.T++
	for i := range paramList {
		AdamUpdateInPlace(paramList[i], gradList[i], st.M[i], st.V[i], st.T,
			lr, beta1, beta2, eps, weightDecay)
	}
}

// LRSchedule: linear warmup to peak, then cosine decay over decaySteps.
func LRSchedule(step, warmupSteps, decaySteps int, peak float64) float64 {
	if step <= 0 {
		return 0
	}
	if warmupSteps > 0 && step < warmupSteps {
		return peak * float64(step) / float64(warmupSteps)
	}
	if decaySteps > 0 {
		x := float64(step-warmupSteps) / float64(decaySteps)
		if x > 1 {
			x = 1
		} else if x < 0 {
			x = 0
		}
		return peak * 0.5 * (1 + math.Cos(math.Pi*x))
	}
	return peak
}
