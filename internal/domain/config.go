package domain

// Stored metadata keys shared by every index backend.
const (
	// TenantField holds the owning agent id. It is the only field the tenant filter reads.
	TenantField = "agentId"
	// TextField holds the chunk text rendered back to callers.
	TextField = "text"
)

// DefaultCollection is the collection every agent's chunks live in.
const DefaultCollection = "embeddings"

// VectorConfig holds internal vectorization settings, not exposed to clients.
type VectorConfig struct {
	Model            string
	Dimensions       int
	DistanceMetric   string
	Algorithm        string
	Collection       string
	QueryInstruction string
}

// DefaultVectorConfig returns the configuration matching chunks written by the ingest pipeline:
// Cohere embed-english-v3.0, 1024 dimensions, cosine distance.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Model:          "embed-english-v3.0",
		Dimensions:     1024,
		DistanceMetric: "cosine",
		Algorithm:      "hnsw",
		Collection:     DefaultCollection,
	}
}

// Collection describes a vector collection as seen by the retrieval core.
type Collection struct {
	Name      string
	Dimension int
}
