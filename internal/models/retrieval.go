package models

// ChunkMeta identifies a corpus chunk inside the vector index side-table.
type ChunkMeta struct {
	ChunkID int    `json:"chunk_id"`
	Source  string `json:"source"`
	Length  int    `json:"length"`
}

// SearchResult is a single similarity-search hit: the chunk text, its
// metadata, and the inner-product score against the query.
type SearchResult struct {
	Document string    `json:"document"`
	Metadata ChunkMeta `json:"metadata"`
	Score    float64   `json:"score"`
}
