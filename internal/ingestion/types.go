// Package ingestion defines the document model of an indexed collection,
// the Kafka event schema used to ship raw collections to the indexer, and
// the helper that derives a collection name from a source path.
package ingestion

import (
	"strings"
	"time"
)

// Document is one element of a collection array. Only title and text are
// indexed; other keys are ignored.
type Document struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// IngestEvent is the Kafka message payload carrying a raw collection to be
// indexed under Collection.
type IngestEvent struct {
	Collection  string    `json:"collection"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"published_at"`
}

// CollectionName returns the final '/'-delimited segment of path.
func CollectionName(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}
