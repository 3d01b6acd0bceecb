// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pose

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Compose returns parent ⊕ child, the transform from parent's parent frame
// to child's child frame.
//
//	p = p_a + R_a p_b
//	q = q_a q_b
//	C = J_a C_a J_aᵀ + J_b C_b J_bᵀ
//
// with J_a = [[I, -[R_a p_b]x], [0, I]] and J_b = diag(R_a, R_a). For
// position-only uncertainty this is C_a + R_a C_b R_aᵀ.
func Compose(parent, child PoseWithCovariance) PoseWithCovariance {
	qa := Normalize(parent.Orientation)
	rb := Rotate(qa, child.Position)

	out := PoseWithCovariance{
		Position:    r3.Add(parent.Position, rb),
		Orientation: Normalize(quat.Mul(qa, Normalize(child.Orientation))),
	}

	R := rotationMatrix(qa)

	ja := eye6()
	// d(p)/d(theta_a) = -[R_a p_b]x
	skew := [3][3]float64{
		{0, rb.Z, -rb.Y},
		{-rb.Z, 0, rb.X},
		{rb.Y, -rb.X, 0},
	}
	jb := mat.NewDense(dim, dim, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			ja.Set(i, 3+j, skew[i][j])
			jb.Set(i, j, R[i][j])
			jb.Set(3+i, 3+j, R[i][j])
		}
	}

	ca := covDense(parent.Covariance)
	cb := covDense(child.Covariance)

	var sum mat.Dense
	sum.Add(propagate(ja, ca), propagate(jb, cb))

	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			// average the mirrored entries to keep the result symmetric
			out.Covariance[i*dim+j] = 0.5 * (sum.At(i, j) + sum.At(j, i))
		}
		// rounding can leave a -1e-20 on an exactly-zero variance
		if d := out.Covariance[i*dim+i]; d < 0 {
			out.Covariance[i*dim+i] = 0
		}
	}
	return out
}

// Chain composes poses left to right: Chain(a, b, c) == Compose(Compose(a, b), c).
func Chain(poses ...PoseWithCovariance) PoseWithCovariance {
	if len(poses) == 0 {
		return Identity()
	}
	acc := poses[0]
	for _, p := range poses[1:] {
		acc = Compose(acc, p)
	}
	return acc
}

func propagate(j, c *mat.Dense) *mat.Dense {
	var tmp, out mat.Dense
	tmp.Mul(j, c)
	out.Mul(&tmp, j.T())
	return &out
}

func covDense(c [36]float64) *mat.Dense {
	data := make([]float64, len(c))
	copy(data, c[:])
	return mat.NewDense(dim, dim, data)
}

func eye6() *mat.Dense {
	m := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		m.Set(i, i, 1)
	}
	return m
}
