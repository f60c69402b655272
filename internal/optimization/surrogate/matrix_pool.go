package surrogate

import "gonum.org/v1/gonum/mat"

// matrixPool reuses symmetric matrix allocations across GP refits.
// Matrices are keyed by dimension; the training set grows by one point
// per iteration, so each size is requested repeatedly during the jitter
// escalation loop.
type matrixPool struct {
	sym map[int][]*mat.SymDense
}

func newMatrixPool() *matrixPool {
	return &matrixPool{sym: make(map[int][]*mat.SymDense)}
}

func (p *matrixPool) getSym(n int) *mat.SymDense {
	if free := p.sym[n]; len(free) > 0 {
		m := free[len(free)-1]
		p.sym[n] = free[:len(free)-1]
		return m
	}
	return mat.NewSymDense(n, nil)
}

func (p *matrixPool) putSym(m *mat.SymDense) {
	n, _ := m.Dims()
	p.sym[n] = append(p.sym[n], m)
}
