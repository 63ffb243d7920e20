package utils

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Matrix wrappers shared by the network, the optimizer and the data pipeline.
//
// Convention: a sequence of T vectors of width d is a (d x T) Dense, one
// timestep per column.

func Dot(m, n mat.Matrix) mat.Matrix {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Product(m, n)
	return o
}

func Apply(fn func(i, j int, v float64) float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

func Scale(s float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Scale(s, m)
	return o
}

func Multiply(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.MulElem(m, n)
	return o
}

func Add(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

func Subtract(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Sub(m, n)
	return o
}

// AddBias broadcasts a (r x 1) bias across every column of m.
func AddBias(m, bias *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	rb, cb := bias.Dims()
	if rb != r || cb != 1 {
		panic("addBias: bias must be (r x 1)")
	}
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			out.Set(i, j, m.At(i, j)+bias.At(i, 0))
		}
	}
	return out
}

func TanhApply(i, j int, x float64) float64 {
	return math.Tanh(x)
}

// ColVectorSoftmax applies softmax across the single column of a (r x 1) vector.
// Used for fused logits -> probabilities.
func ColVectorSoftmax(v *mat.Dense) *mat.Dense {
	r, c := v.Dims()
	if c != 1 {
		panic("ColVectorSoftmax expects a (r x 1) column vector")
	}
	out := mat.NewDense(r, 1, nil)
	// stability: subtract max
	mx := v.At(0, 0)
	for i := 1; i < r; i++ {
		if v.At(i, 0) > mx {
			mx = v.At(i, 0)
		}
	}
	sum := 0.0
	for i := 0; i < r; i++ {
		e := math.Exp(v.At(i, 0) - mx)
		out.Set(i, 0, e)
		sum += e
	}
	for i := 0; i < r; i++ {
		out.Set(i, 0, out.At(i, 0)/sum)
	}
	return out
}

// ---------- Loss ----------

// CrossEntropyWithGrad takes softmax output probs (V x 1) and the target id,
// returning the negative log likelihood and the gradient w.r.t. the
// pre-softmax logits (probs minus one-hot target).
func CrossEntropyWithGrad(probs *mat.Dense, target int) (float64, *mat.Dense) {
	r, c := probs.Dims()
	if c != 1 {
		panic("CrossEntropyWithGrad expects a (r x 1) column vector")
	}
	if target < 0 || target >= r {
		panic("CrossEntropyWithGrad: target id out of range")
	}
	loss := -math.Log(probs.At(target, 0) + 1e-12)
	grad := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		grad.Set(i, 0, probs.At(i, 0))
	}
	grad.Set(target, 0, grad.At(target, 0)-1.0)
	return loss, grad
}
