package store

// Block is one structural unit owned by an indexed file.
// Line numbers are 0-based and inclusive on both ends.
type Block struct {
	ID         int64
	FileID     int64
	Type       string
	Name       string
	Content    string
	StartLine  int
	EndLine    int
	Docstring  string
	Decorators []string
}

// Candidate is a keyword-search hit: enough to locate and rank a block
// without loading its full content.
type Candidate struct {
	BlockID   int64
	FilePath  string
	BlockType string
	Name      string
	StartLine int
	EndLine   int
}

// BlockEmbedding pairs a block ID with its stored vector.
type BlockEmbedding struct {
	BlockID int64
	Vector  []float32
}

// FileInfo is a lightweight file listing entry.
type FileInfo struct {
	ID       int64
	Path     string
	Language string
	Hash     string
	Blocks   int
}
