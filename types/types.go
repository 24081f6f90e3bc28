package types

import (
	"time"

	"github.com/google/uuid"
)

// Document is the raw text extracted from one source, e.g. a PDF page.
type Document struct {
	Title   string
	Source  string // pdf, text, entries
	Page    int
	Content string
}

// Chunk is an ordered slice of a document's text.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// CollectionEntry is what ends up in the vector store: a position based id,
// the vector and the chunk text as payload.
type CollectionEntry struct {
	ID     int64
	Vector []float32
	Name   string
}

type SearchMatch struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Distance is the vector metric of a collection. Values follow Qdrant naming.
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceDot    Distance = "Dot"
	DistanceEuclid Distance = "Euclid"
)

func (d Distance) Valid() bool {
	switch d {
	case DistanceCosine, DistanceDot, DistanceEuclid:
		return true
	}
	return false
}

type IngestResult struct {
	ID         uuid.UUID `json:"id"`
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	Collection string    `json:"collection"`
	Chunks     int       `json:"chunks"`
	Embedded   int       `json:"embedded"`
	Uploaded   int       `json:"uploaded"`
	// FailedIndex is the chunk position that stopped the ingestion, -1 on success.
	FailedIndex int           `json:"failed_index"`
	Took        time.Duration `json:"took"`
}

type Answer struct {
	Answer    string        `json:"answer"`
	Sources   []SearchMatch `json:"sources"`
	Timestamp time.Time     `json:"timestamp"`
}
