package null

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"residualbind/internal/tensor"
)

// ShuffleError reports a sequence that cannot be dinucleotide shuffled.
type ShuffleError struct {
	Index  int
	Reason string
}

func (e *ShuffleError) Error() string {
	return fmt.Sprintf("cannot dinucleotide shuffle sequence %d: %s", e.Index, e.Reason)
}

// ShufflePositions permutes the positions of example i of x in place.
// Nucleotide composition is preserved, adjacency is not.
func ShufflePositions(rng *rand.Rand, x *tensor.Tensor, i int) {
	ex := x.Example(i)
	width := x.Shape[2]
	tmp := make([]float32, width)
	rng.Shuffle(x.Shape[1], func(a, b int) {
		pa, pb := ex[a*width:(a+1)*width], ex[b*width:(b+1)*width]
		copy(tmp, pa)
		copy(pa, pb)
		copy(pb, tmp)
	})
}

// maxArborescenceTries bounds the rejection sampling of last exit edges.
const maxArborescenceTries = 1000

// DinucShuffle replaces example i of x with a random sequence that has the
// same first symbol and exactly the same multiset of adjacent symbol pairs
// (Altschul and Erickson). All-zero positions count as their own symbol.
func DinucShuffle(rng *rand.Rand, x *tensor.Tensor, i int) error {
	tokens := Tokens(x, i)
	shuffled, err := shuffleTokens(rng, tokens)
	if err != nil {
		return &ShuffleError{Index: i, Reason: err.Error()}
	}

	ex := x.Example(i)
	width := x.Shape[2]
	for j := range ex {
		ex[j] = 0
	}
	for pos, t := range shuffled {
		if t < width {
			ex[pos*width+t] = 1
		}
	}
	return nil
}

// Tokens returns the argmax symbol of every position of example i. An
// all-zero position gets the token x.Shape[2].
func Tokens(x *tensor.Tensor, i int) []int {
	length, width := x.Shape[1], x.Shape[2]
	ex := x.Example(i)
	tokens := make([]int, length)
	for pos := 0; pos < length; pos++ {
		best, bestVal := width, float32(0)
		for a := 0; a < width; a++ {
			if v := ex[pos*width+a]; v > bestVal {
				best, bestVal = a, v
			}
		}
		tokens[pos] = best
	}
	return tokens
}

func shuffleTokens(rng *rand.Rand, tokens []int) ([]int, error) {
	n := len(tokens)
	distinct := make(map[int]bool)
	for _, t := range tokens {
		distinct[t] = true
	}
	if len(distinct) < 2 {
		return nil, fmt.Errorf("needs at least two distinct symbols, has %d", len(distinct))
	}

	// out-edges of every symbol, in sequence order
	edges := make(map[int][]int)
	for j := 0; j < n-1; j++ {
		edges[tokens[j]] = append(edges[tokens[j]], tokens[j+1])
	}
	last := tokens[n-1]

	exits, err := lastExits(rng, edges, last)
	if err != nil {
		return nil, err
	}

	// shuffle the remaining out-edges, the chosen exit goes last
	for _, v := range sortedSymbols(edges) {
		out := edges[v]
		exit := exits[v]
		rest := make([]int, 0, len(out))
		removed := false
		for _, w := range out {
			if !removed && v != last && w == exit {
				removed = true
				continue
			}
			rest = append(rest, w)
		}
		rng.Shuffle(len(rest), func(a, b int) { rest[a], rest[b] = rest[b], rest[a] })
		if v != last {
			rest = append(rest, exit)
		}
		edges[v] = rest
	}

	out := make([]int, 0, n)
	used := make(map[int]int)
	cur := tokens[0]
	out = append(out, cur)
	for len(out) < n {
		next, k := edges[cur], used[cur]
		if k >= len(next) {
			return nil, fmt.Errorf("symbol graph is not connected")
		}
		used[cur] = k + 1
		cur = next[k]
		out = append(out, cur)
	}
	return out, nil
}

// lastExits picks, for every symbol other than last, the edge used to leave
// it for the final time, such that those edges form a tree rooted at last.
// Candidates are drawn uniformly and rejected until they form such a tree;
// the exits of the input sequence itself are the fallback.
func lastExits(rng *rand.Rand, edges map[int][]int, last int) (map[int]int, error) {
	var symbols []int
	for _, v := range sortedSymbols(edges) {
		if v != last {
			symbols = append(symbols, v)
		}
	}

	for try := 0; try < maxArborescenceTries; try++ {
		exits := make(map[int]int, len(symbols))
		for _, v := range symbols {
			out := edges[v]
			exits[v] = out[rng.IntN(len(out))]
		}
		if reachesRoot(exits, last) {
			return exits, nil
		}
	}

	exits := make(map[int]int, len(symbols))
	for _, v := range symbols {
		out := edges[v]
		exits[v] = out[len(out)-1]
	}
	if !reachesRoot(exits, last) {
		return nil, fmt.Errorf("symbol graph is not connected")
	}
	return exits, nil
}

// sortedSymbols returns the symbols that have out-edges in ascending order.
func sortedSymbols(edges map[int][]int) []int {
	symbols := make([]int, 0, len(edges))
	for v := range edges {
		symbols = append(symbols, v)
	}
	sort.Ints(symbols)
	return symbols
}

func reachesRoot(exits map[int]int, root int) bool {
	for v := range exits {
		seen := map[int]bool{}
		for cur := v; cur != root; {
			if seen[cur] {
				return false
			}
			seen[cur] = true
			next, ok := exits[cur]
			if !ok {
				return false
			}
			cur = next
		}
	}
	return true
}
