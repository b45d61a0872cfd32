package search

import (
	"context"
	"fmt"

	"github.com/meilisearch/meilisearch-go"

	"skimeister/internal/models"
)

// ResortDocument is the indexed form of a resort
type ResortDocument struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Country string `json:"country"`
	Region  string `json:"region"`
}

// NameIndex keeps resort names in Meilisearch for typo-tolerant lookup
type NameIndex struct {
	client *meilisearch.Client
	index  string
}

func NewNameIndex(host, apiKey, index string) *NameIndex {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	if index == "" {
		index = "resorts"
	}
	return &NameIndex{client: client, index: index}
}

// InitIndex creates the index and configures its attributes
func (n *NameIndex) InitIndex() error {
	// Creation is asynchronous; an existing index only fails the task
	if _, err := n.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        n.index,
		PrimaryKey: "id",
	}); err != nil {
		return err
	}

	if _, err := n.client.Index(n.index).UpdateSearchableAttributes(&[]string{
		"name",
		"region",
		"slug",
	}); err != nil {
		return err
	}

	_, err := n.client.Index(n.index).UpdateFilterableAttributes(&[]string{
		"country",
	})
	return err
}

// IndexResorts adds or replaces resort documents
func (n *NameIndex) IndexResorts(resorts []models.Resort) error {
	if len(resorts) == 0 {
		return nil
	}
	docs := make([]ResortDocument, 0, len(resorts))
	for _, r := range resorts {
		docs = append(docs, ResortDocument{
			ID:      r.ID,
			Name:    r.Name,
			Slug:    r.Slug,
			Country: r.Country,
			Region:  r.Region,
		})
	}
	_, err := n.client.Index(n.index).AddDocuments(docs, "id")
	return err
}

// SearchIDs returns the ids of resorts whose indexed text matches query
func (n *NameIndex) SearchIDs(_ context.Context, query string, limit int64) ([]uint, error) {
	if limit <= 0 {
		limit = 20
	}
	res, err := n.client.Index(n.index).Search(query, &meilisearch.SearchRequest{
		Limit:                limit,
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		return nil, fmt.Errorf("meilisearch query %q: %w", query, err)
	}
	return hitIDs(res.Hits), nil
}

// hitIDs extracts numeric ids from raw search hits
func hitIDs(hits []interface{}) []uint {
	ids := make([]uint, 0, len(hits))
	for _, hit := range hits {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := hitMap["id"].(float64); ok && id > 0 {
			ids = append(ids, uint(id))
		}
	}
	return ids
}
