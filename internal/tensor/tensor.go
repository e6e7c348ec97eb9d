// Package tensor provides the host-side rank-3 float32 buffer shared by the
// encoding pipeline, the dataset container and the GIA engine.
//
// Tensors are plain row-major buffers with shape metadata. Two layouts are in
// use across the repository: channel-major (N, channels, length) for stored
// datasets and position-major (N, length, channels) for predictor inputs and
// null ensembles. SwapAxes converts between them.
package tensor

import "fmt"

// Tensor is a dense row-major rank-3 float32 array.
type Tensor struct {
	Shape [3]int
	Data  []float32
}

// New allocates a zero-filled tensor of shape (n, a, b).
func New(n, a, b int) *Tensor {
	return &Tensor{
		Shape: [3]int{n, a, b},
		Data:  make([]float32, n*a*b),
	}
}

// FromData wraps data with the given shape. It fails if the sizes disagree.
func FromData(shape [3]int, data []float32) (*Tensor, error) {
	if shape[0]*shape[1]*shape[2] != len(data) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, shape[0]*shape[1]*shape[2], len(data))
	}
	return &Tensor{Shape: shape, Data: data}, nil
}

// Len returns the size of the leading axis.
func (t *Tensor) Len() int {
	if t == nil {
		return 0
	}
	return t.Shape[0]
}

// Stride returns the number of values held by one example.
func (t *Tensor) Stride() int {
	return t.Shape[1] * t.Shape[2]
}

func (t *Tensor) offset(i, j, k int) int {
	return (i*t.Shape[1]+j)*t.Shape[2] + k
}

// At returns the value at (i, j, k).
func (t *Tensor) At(i, j, k int) float32 {
	return t.Data[t.offset(i, j, k)]
}

// Set stores v at (i, j, k).
func (t *Tensor) Set(i, j, k int, v float32) {
	t.Data[t.offset(i, j, k)] = v
}

// Example returns the backing slice of example i. Writes go through to t.
func (t *Tensor) Example(i int) []float32 {
	s := t.Stride()
	return t.Data[i*s : (i+1)*s]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return &Tensor{Shape: t.Shape, Data: data}
}

// Select gathers the given examples, in order, into a new tensor.
func (t *Tensor) Select(indices []int) *Tensor {
	out := New(len(indices), t.Shape[1], t.Shape[2])
	s := t.Stride()
	for dst, src := range indices {
		copy(out.Data[dst*s:(dst+1)*s], t.Data[src*s:(src+1)*s])
	}
	return out
}

// Slice returns examples [from, to) as a new tensor sharing no memory with t.
func (t *Tensor) Slice(from, to int) *Tensor {
	s := t.Stride()
	out := New(to-from, t.Shape[1], t.Shape[2])
	copy(out.Data, t.Data[from*s:to*s])
	return out
}

// SwapAxes exchanges the two trailing axes, turning (N, A, B) into (N, B, A).
func (t *Tensor) SwapAxes() *Tensor {
	n, a, b := t.Shape[0], t.Shape[1], t.Shape[2]
	out := New(n, b, a)
	for i := 0; i < n; i++ {
		for j := 0; j < a; j++ {
			for k := 0; k < b; k++ {
				out.Set(i, k, j, t.At(i, j, k))
			}
		}
	}
	return out
}

// Concat joins tensors along the middle axis. All inputs must agree on the
// leading and trailing axes.
func Concat(parts ...*Tensor) (*Tensor, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("nothing to concatenate")
	}
	n, b := parts[0].Shape[0], parts[0].Shape[2]
	a := 0
	for _, p := range parts {
		if p.Shape[0] != n || p.Shape[2] != b {
			return nil, fmt.Errorf("cannot concatenate shape %v with %v", parts[0].Shape, p.Shape)
		}
		a += p.Shape[1]
	}
	out := New(n, a, b)
	for i := 0; i < n; i++ {
		dst := out.Example(i)
		off := 0
		for _, p := range parts {
			src := p.Example(i)
			copy(dst[off:], src)
			off += len(src)
		}
	}
	return out, nil
}

// Matrix is a dense row-major float32 matrix, used for target tables and
// predictor outputs.
type Matrix struct {
	Rows, Cols int
	Data       []float32
}

// NewMatrix allocates a zero-filled rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// Row returns the backing slice of row i.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// SelectRows gathers the given rows into a new matrix.
func (m *Matrix) SelectRows(indices []int) *Matrix {
	out := NewMatrix(len(indices), m.Cols)
	for dst, src := range indices {
		copy(out.Row(dst), m.Row(src))
	}
	return out
}

// Column copies column j out as float64, which is what gonum expects.
func (m *Matrix) Column(j int) []float64 {
	col := make([]float64, m.Rows)
	for i := 0; i < m.Rows; i++ {
		col[i] = float64(m.Data[i*m.Cols+j])
	}
	return col
}
