package domain

import (
	"strings"
	"time"
)

// ChunkType identifies the format a chunk was extracted from.
type ChunkType string

const (
	ChunkTypeText       ChunkType = "text"
	ChunkTypeJSON       ChunkType = "json"
	ChunkTypeYAML       ChunkType = "yaml"
	ChunkTypeCSV        ChunkType = "csv"
	ChunkTypeMarkdown   ChunkType = "markdown"
	ChunkTypePDF        ChunkType = "pdf"
	ChunkTypeDocx       ChunkType = "docx"
	ChunkTypeStructured ChunkType = "structured"
)

// ChunkTypes lists every chunk type in a stable order.
var ChunkTypes = []ChunkType{
	ChunkTypeText,
	ChunkTypeJSON,
	ChunkTypeYAML,
	ChunkTypeCSV,
	ChunkTypeMarkdown,
	ChunkTypePDF,
	ChunkTypeDocx,
	ChunkTypeStructured,
}

// IsValid checks if the chunk type is one of the known variants
func (t ChunkType) IsValid() bool {
	for _, known := range ChunkTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseChunkType converts a string to a ChunkType.
func ParseChunkType(s string) (ChunkType, error) {
	t := ChunkType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrInvalidChunkType
	}
	return t, nil
}

// MetaCategory is the metadata key grouping chunks into knowledge categories.
const MetaCategory = "category"

// ChunkDraft is an extracted chunk that has not been embedded or stored yet.
type ChunkDraft struct {
	Content   string
	Source    string
	ChunkType ChunkType
	Metadata  Metadata
}

// Chunk is the smallest retrievable unit of knowledge.
type Chunk struct {
	ID        int64
	Content   string
	Source    string
	ChunkType ChunkType
	Metadata  Metadata
	Embedding []float32
	CreatedAt time.Time
}

// Category returns the chunk's category metadata, or "".
func (c *Chunk) Category() string {
	return c.Metadata.GetString(MetaCategory)
}

// NewChunkDraft trims content and returns a draft.
func NewChunkDraft(content, source string, chunkType ChunkType, metadata Metadata) ChunkDraft {
	return ChunkDraft{
		Content:   strings.TrimSpace(content),
		Source:    source,
		ChunkType: chunkType,
		Metadata:  metadata,
	}
}

// Validate checks the draft fields that must hold before persisting.
func (d ChunkDraft) Validate() error {
	if strings.TrimSpace(d.Content) == "" {
		return ErrEmptyContent
	}
	if d.Source == "" {
		return ErrMissingSource
	}
	if !d.ChunkType.IsValid() {
		return ErrInvalidChunkType
	}
	return d.Metadata.Validate()
}

// Match is a chunk returned by a similarity search.
type Match struct {
	Chunk      *Chunk
	Similarity float64
}

// Stats summarizes the store contents.
type Stats struct {
	Total       int64
	ByChunkType map[ChunkType]int64
	BySource    map[string]int64
	// ByCategory counts chunks carrying a non-empty category.
	ByCategory map[string]int64
}
