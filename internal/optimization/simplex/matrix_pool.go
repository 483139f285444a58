package simplex

import (
	"sync"

	"gonum.org/v1/gonum/mat"
)

// matrixPool recycles constraint matrices between the relaxations of one
// branch-and-bound search. Matrices are pooled per shape, since fixing a
// variable removes a column.
type matrixPool struct {
	mu    sync.Mutex
	dense map[[2]int][]*mat.Dense
}

func newMatrixPool() *matrixPool {
	return &matrixPool{dense: make(map[[2]int][]*mat.Dense)}
}

// getDense returns a zeroed r×c matrix.
func (p *matrixPool) getDense(r, c int) *mat.Dense {
	key := [2]int{r, c}

	p.mu.Lock()
	free := p.dense[key]
	if n := len(free); n > 0 {
		m := free[n-1]
		p.dense[key] = free[:n-1]
		p.mu.Unlock()
		m.Zero()
		return m
	}
	p.mu.Unlock()

	return mat.NewDense(r, c, nil)
}

// putDense returns m to the pool.
func (p *matrixPool) putDense(m *mat.Dense) {
	r, c := m.Dims()
	key := [2]int{r, c}

	p.mu.Lock()
	p.dense[key] = append(p.dense[key], m)
	p.mu.Unlock()
}
