package database

// EmbeddingDim is the expected embedding length for dlib-style face
// encodings. Other dims are accepted as long as a whole index is uniform.
const EmbeddingDim = 128

// TimeLayout is the absentime column format, shared by the local ledger and
// the campus store so rows compare byte for byte.
const TimeLayout = "2006-01-02 15:04:05"

// HNSW index parameters.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWMinNodes is the embedding count below which the index stays a
	// plain linear scan. Class-sized deployments never cross it.
	HNSWMinNodes = 1024

	// HNSWCandidates is how many graph nodes a nearest query pulls before
	// grouping them by identity. Large enough that the two closest
	// identities are both represented.
	HNSWCandidates = 48
)
