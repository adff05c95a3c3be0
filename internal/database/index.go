package database

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/hadir-dev/hadir/internal/facematch"
)

// ErrEmptyStore is returned when the index holds no identities, or when a
// load is attempted with zero identities. Matching is undefined without
// enrolled identities; recovery is re-enrollment.
var ErrEmptyStore = errors.New("no identities enrolled")

// Index is the in-memory embedding index. A query returns the two closest
// distinct identities, each scored by the minimum distance over that
// identity's enrolled embeddings, so a student's best reference photo wins
// even when their other references are poor.
//
// Small deployments are served by an exact linear scan; once the embedding
// count reaches HNSWMinNodes the index builds an HNSW graph and re-ranks
// graph candidates by exact distance. Nearest takes a read lock, Load takes
// the write lock, so a re-enrollment never races in-flight queries.
type Index struct {
	mu         sync.RWMutex
	metric     Metric
	nodes      []indexNode
	graph      *hnsw.Graph[int] // nil while the linear scan suffices
	identities int
	dim        int
}

type indexNode struct {
	nim       string
	name      string
	embedding []float32
}

// NewIndex creates an empty index using the given metric.
func NewIndex(metric Metric) *Index {
	return &Index{metric: metric}
}

// Load replaces the index contents with the given identities. Loading zero
// identities fails with ErrEmptyStore and leaves the current contents in
// place. Embedding lengths must be uniform across the whole load.
func (ix *Index) Load(identities []Identity) error {
	if len(identities) == 0 {
		return ErrEmptyStore
	}

	var nodes []indexNode
	nims := make(map[string]struct{}, len(identities))
	dim := 0

	for _, id := range identities {
		if len(id.Embeddings) == 0 {
			return fmt.Errorf("identity %s has no embeddings", id.NIM)
		}
		for _, emb := range id.Embeddings {
			if len(emb) == 0 {
				return fmt.Errorf("identity %s has an empty embedding", id.NIM)
			}
			if dim == 0 {
				dim = len(emb)
			} else if len(emb) != dim {
				return fmt.Errorf("identity %s: embedding length %d, index uses %d", id.NIM, len(emb), dim)
			}
			nodes = append(nodes, indexNode{nim: id.NIM, name: id.Name, embedding: emb})
		}
		nims[id.NIM] = struct{}{}
	}

	var graph *hnsw.Graph[int]
	if len(nodes) >= HNSWMinNodes {
		g := hnsw.NewGraph[int]()
		g.M = HNSWMaxNeighbors
		g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
		g.Distance = hnsw.CosineDistance
		if ix.metric == MetricEuclidean {
			g.Distance = hnsw.EuclideanDistance
		}
		for i := range nodes {
			g.Add(hnsw.MakeNode(i, nodes[i].embedding))
		}
		graph = g
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.nodes = nodes
	ix.graph = graph
	ix.identities = len(nims)
	ix.dim = dim
	return nil
}

// Nearest returns the closest and second-closest identities to the query.
// The second neighbor is zero-valued when only one identity is enrolled.
func (ix *Index) Nearest(query []float32) (facematch.Neighbor, facematch.Neighbor, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.nodes) == 0 {
		return facematch.Neighbor{}, facematch.Neighbor{}, ErrEmptyStore
	}

	if ix.graph != nil {
		return ix.nearestHNSW(query)
	}
	return ix.nearestLinear(query)
}

func (ix *Index) nearestLinear(query []float32) (facematch.Neighbor, facematch.Neighbor, error) {
	minByNIM := make(map[string]facematch.Neighbor, ix.identities)
	for i := range ix.nodes {
		n := &ix.nodes[i]
		d := ix.metric.Distance(query, n.embedding)
		if cur, ok := minByNIM[n.nim]; !ok || d < cur.Distance {
			minByNIM[n.nim] = facematch.Neighbor{NIM: n.nim, Name: n.name, Distance: d}
		}
	}
	best, second := rankNeighbors(minByNIM)
	return best, second, nil
}

func (ix *Index) nearestHNSW(query []float32) (facematch.Neighbor, facematch.Neighbor, error) {
	k := HNSWCandidates
	if k > len(ix.nodes) {
		k = len(ix.nodes)
	}

	candidates := ix.graph.Search(query, k)
	minByNIM := make(map[string]facematch.Neighbor, len(candidates))
	for _, c := range candidates {
		node := &ix.nodes[c.Key]
		// Recompute the exact distance; graph search order is approximate.
		d := ix.metric.Distance(query, node.embedding)
		if cur, ok := minByNIM[node.nim]; !ok || d < cur.Distance {
			minByNIM[node.nim] = facematch.Neighbor{NIM: node.nim, Name: node.name, Distance: d}
		}
	}
	best, second := rankNeighbors(minByNIM)
	return best, second, nil
}

// rankNeighbors orders per-identity minima and returns the two best.
// Ties break by NIM so that identical stores give identical answers.
func rankNeighbors(minByNIM map[string]facematch.Neighbor) (facematch.Neighbor, facematch.Neighbor) {
	ranked := make([]facematch.Neighbor, 0, len(minByNIM))
	for _, nb := range minByNIM {
		ranked = append(ranked, nb)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Distance != ranked[j].Distance {
			return ranked[i].Distance < ranked[j].Distance
		}
		return ranked[i].NIM < ranked[j].NIM
	})

	var best, second facematch.Neighbor
	if len(ranked) > 0 {
		best = ranked[0]
	}
	if len(ranked) > 1 {
		second = ranked[1]
	}
	return best, second
}

// Count returns the number of distinct enrolled identities.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.identities
}

// EmbeddingCount returns the number of indexed embeddings.
func (ix *Index) EmbeddingCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.nodes)
}

// Dim returns the embedding length the index was loaded with, 0 when empty.
func (ix *Index) Dim() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Indexed reports whether queries are served by the HNSW graph rather than
// the linear scan.
func (ix *Index) Indexed() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.graph != nil
}
