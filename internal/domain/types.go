package domain

// Segment is a bounded unit of text produced by a chunker.
type Segment struct {
	Text         string
	SourceID     string
	Index        uint32
	Total        uint32
	ApproxTokens uint32
}

// Entry is the metadata record stored next to a vector. ID equals the
// vector's position in the index.
type Entry struct {
	ID         uint64 `json:"id"`
	Text       string `json:"text"`
	Source     string `json:"source"`
	Filename   string `json:"filename"`
	ChunkIndex uint32 `json:"chunk_index"`
}

// SearchResult is an entry together with its squared L2 distance to the query.
type SearchResult struct {
	Entry    Entry   `json:"entry"`
	Distance float32 `json:"distance"`
}

// Stats summarizes the contents of an index.
type Stats struct {
	TotalVectors   int `json:"total_vectors"`
	TotalDocuments int `json:"total_documents"`
	TotalChunks    int `json:"total_chunks"`
	Dimension      int `json:"dimension"`
}
