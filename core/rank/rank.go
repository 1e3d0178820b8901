// Package rank orders items by rank centrality over their pairwise vote
// comparisons: the score vector is the stationary distribution of a random
// walk whose transition weights come from vote ratios. Disconnected vote
// graphs are split into strongly connected components and ranked
// per-component, since the walk cannot compare across components.
package rank

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/mat"

	"github.com/sortersocial/sorter/core/reduce"
)

const (
	// DefaultTol stops iteration when the L1 change between successive
	// score vectors drops below it.
	DefaultTol = 1e-8
	// DefaultMaxIters bounds the power iteration.
	DefaultMaxIters = 100000
)

// Ranking is one item's position within its component.
type Ranking struct {
	Item      string  `json:"item"`
	Score     float64 `json:"score"`
	Rank      int     `json:"rank"`      // 1-based within the component
	Component int     `json:"component"` // 0-based component id
}

// Centrality computes rank-centrality scores for an n x n comparison
// matrix A, where A[i,j] / (A[i,j] + A[j,i]) is the probability that item j
// is preferred to item i. The graph induced by non-zero entries must be
// connected; Rankings guarantees that by splitting components first.
func Centrality(A mat.Matrix, tol float64, maxIters int) ([]float64, error) {
	n, m := A.Dims()
	if n != m {
		return nil, fmt.Errorf("comparison matrix must be square, got %dx%d", n, m)
	}
	if n == 0 {
		return nil, nil
	}
	if n == 1 {
		return []float64{1}, nil
	}

	// Normalize pairwise weights so each compared (i, j) pair sums to 1.
	W := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if a := A.At(i, j); a != 0 {
				W.Set(i, j, a/(a+A.At(j, i)))
			}
		}
	}

	// The transition matrix divides all non-diagonal entries by the largest
	// off-diagonal row sum, keeping diagonal entries as small as possible
	// without going negative. Smaller diagonals converge faster.
	wMax := 0.0
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			if j != i {
				sum += W.At(i, j)
			}
		}
		if sum > wMax {
			wMax = sum
		}
	}
	if wMax == 0 {
		// No comparisons at all: uniform scores.
		scores := make([]float64, n)
		for i := range scores {
			scores[i] = 1 / float64(n)
		}
		return scores, nil
	}

	P := mat.NewDense(n, n, nil)
	P.Scale(1/wMax, W)
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			if j != i {
				sum += P.At(i, j)
			}
		}
		P.Set(i, i, 1-sum)
	}

	// Power iteration for the stationary distribution.
	prev := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		prev.SetVec(i, 1/float64(n))
	}
	var next mat.VecDense
	for iter := 0; iter < maxIters; iter++ {
		next.MulVec(P.T(), prev)
		diff := 0.0
		for i := 0; i < n; i++ {
			d := next.AtVec(i) - prev.AtVec(i)
			if d < 0 {
				d = -d
			}
			diff += d
		}
		prev.CopyVec(&next)
		if diff < tol {
			break
		}
	}

	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		scores[i] = prev.AtVec(i)
	}
	return scores, nil
}

// Components groups item indices into strongly connected components of the
// directed comparison graph. With zero-free vote ratios every vote creates
// arcs both ways, so components coincide with the groups a random walk can
// actually mix over. Components are ordered by their smallest item index.
func Components(A mat.Matrix) [][]int {
	n, _ := A.Dims()
	g := simple.NewDirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && A.At(i, j) != 0 {
				g.SetEdge(g.NewEdge(simple.Node(i), simple.Node(j)))
			}
		}
	}

	var comps [][]int
	for _, scc := range topo.TarjanSCC(g) {
		comp := make([]int, 0, len(scc))
		for _, node := range scc {
			comp = append(comp, int(node.ID()))
		}
		sort.Ints(comp)
		comps = append(comps, comp)
	}
	sort.Slice(comps, func(a, b int) bool { return comps[a][0] < comps[b][0] })
	return comps
}

// Rankings computes per-component rankings for the items of a section
// under a vote attribute. Items with no votes form singleton components
// ranked first within themselves. The result is ordered by component, then
// by rank.
func Rankings(state *reduce.State, section, attribute string) ([]Ranking, error) {
	var titles []string
	for title, item := range state.Items {
		if item.InSection(section) {
			titles = append(titles, title)
		}
	}
	if len(titles) == 0 {
		return nil, nil
	}
	sort.Strings(titles)

	index := make(map[string]int, len(titles))
	for i, t := range titles {
		index[t] = i
	}
	n := len(titles)

	A := mat.NewDense(n, n, nil)
	voted := false
	for _, v := range state.Votes {
		if v.Attribute != attribute {
			continue
		}
		i, ok1 := index[v.Vote.Left]
		j, ok2 := index[v.Vote.Right]
		if !ok1 || !ok2 {
			continue
		}
		// The vote prefers Left with RatioLeft:RatioRight, so preference
		// for Left accumulates at A[j,i] and for Right at A[i,j].
		A.Set(j, i, A.At(j, i)+float64(v.Vote.RatioLeft))
		A.Set(i, j, A.At(i, j)+float64(v.Vote.RatioRight))
		voted = true
	}

	if !voted {
		// No votes under this attribute: everything ties.
		out := make([]Ranking, n)
		for i, t := range titles {
			out[i] = Ranking{Item: t, Score: 1 / float64(n), Rank: 1}
		}
		return out, nil
	}

	var out []Ranking
	for compID, comp := range Components(A) {
		if len(comp) == 1 {
			out = append(out, Ranking{
				Item:      titles[comp[0]],
				Score:     1,
				Rank:      1,
				Component: compID,
			})
			continue
		}

		sub := mat.NewDense(len(comp), len(comp), nil)
		for a, i := range comp {
			for b, j := range comp {
				sub.Set(a, b, A.At(i, j))
			}
		}
		scores, err := Centrality(sub, DefaultTol, DefaultMaxIters)
		if err != nil {
			return nil, err
		}

		order := make([]int, len(comp))
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool {
			if scores[order[a]] != scores[order[b]] {
				return scores[order[a]] > scores[order[b]]
			}
			return titles[comp[order[a]]] < titles[comp[order[b]]]
		})
		for pos, idx := range order {
			out = append(out, Ranking{
				Item:      titles[comp[idx]],
				Score:     scores[idx],
				Rank:      pos + 1,
				Component: compID,
			})
		}
	}
	return out, nil
}
