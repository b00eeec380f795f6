package audit

import (
	"context"
	"fmt"

	"phone-auth-service/internal/models"
)

// DocumentIndexer is satisfied by *client.ESClient.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, index, id string, document interface{}) error
}

type ElasticsearchSink struct {
	indexer DocumentIndexer
	index   string
}

func NewElasticsearchSink(indexer DocumentIndexer, index string) *ElasticsearchSink {
	return &ElasticsearchSink{indexer: indexer, index: index}
}

func (s *ElasticsearchSink) Publish(ctx context.Context, event models.AuthEvent) error {
	if err := s.indexer.IndexDocument(ctx, s.index, event.ID, event); err != nil {
		return fmt.Errorf("failed to index auth event: %w", err)
	}
	return nil
}
