package crm

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/clinprep/exam-booking-backend/internal/config"
	"github.com/clinprep/exam-booking-backend/internal/models"
)

// ChunkFailure records one failed chunk of a batched call: which chunk,
// how many items it carried, and why it failed.
type ChunkFailure struct {
	Index int
	Size  int
	Err   error
}

func (f ChunkFailure) String() string {
	return fmt.Sprintf("chunk %d (%d items): %v", f.Index, f.Size, f.Err)
}

// BatchClient presents "read N objects" / "write N objects" / "read N
// associations" as single logical calls regardless of provider-imposed
// per-call limits. Oversized inputs are split into limit-sized chunks
// issued concurrently; every chunk is awaited (no fail-fast), and the
// result is the union of the successful chunks' items plus a failure log
// for the rest. A call errors only when every chunk failed.
//
// Callers performing reads treat partial data as best-effort; callers
// performing writes must consult the failure log before declaring success.
type BatchClient struct {
	client *Client
	logger *logrus.Logger

	objectLimit      int
	associationLimit int
	writeLimit       int
}

// NewBatchClient creates a chunking layer over the remote store client
func NewBatchClient(client *Client, cfg config.CRMConfig, logger *logrus.Logger) *BatchClient {
	return &BatchClient{
		client:           client,
		logger:           logger,
		objectLimit:      cfg.ObjectBatchLimit,
		associationLimit: cfg.AssociationBatchLimit,
		writeLimit:       cfg.WriteBatchLimit,
	}
}

// ReadObjects reads an arbitrary number of objects by ID, chunked at the
// object batch limit. Empty input short-circuits without a network call.
func (b *BatchClient) ReadObjects(ctx context.Context, objectType string, ids []string, fields []string) ([]Object, []ChunkFailure, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	chunks := chunkStrings(ids, b.objectLimit)
	results := make([][]Object, len(chunks))

	failures := b.settleAll(len(chunks), func(i int) (int, error) {
		objects, err := b.client.ReadObjects(ctx, objectType, chunks[i], fields)
		if err != nil {
			return len(chunks[i]), err
		}
		results[i] = objects
		return len(chunks[i]), nil
	})

	if len(failures) == len(chunks) {
		return nil, failures, fmt.Errorf("%w: all %d read chunks failed", models.ErrUpstreamUnavailable, len(chunks))
	}

	return flattenObjects(results), failures, nil
}

// UpdateObjects applies an arbitrary number of property updates, chunked at
// the object batch limit. Item order is preserved within each chunk; chunk
// completion order is not guaranteed.
func (b *BatchClient) UpdateObjects(ctx context.Context, objectType string, inputs []ObjectInput) ([]Object, []ChunkFailure, error) {
	if len(inputs) == 0 {
		return nil, nil, nil
	}

	chunks := chunkInputs(inputs, b.objectLimit)
	results := make([][]Object, len(chunks))

	failures := b.settleAll(len(chunks), func(i int) (int, error) {
		objects, err := b.client.UpdateObjects(ctx, objectType, chunks[i])
		if err != nil {
			return len(chunks[i]), err
		}
		results[i] = objects
		return len(chunks[i]), nil
	})

	if len(failures) == len(chunks) {
		return nil, failures, fmt.Errorf("%w: all %d update chunks failed", models.ErrUpstreamUnavailable, len(chunks))
	}

	return flattenObjects(results), failures, nil
}

// ReadAssociations reads association edges for an arbitrary number of
// source objects, chunked at the association batch limit
func (b *BatchClient) ReadAssociations(ctx context.Context, fromType string, fromIDs []string, toType string) ([]models.Association, []ChunkFailure, error) {
	if len(fromIDs) == 0 {
		return nil, nil, nil
	}

	chunks := chunkStrings(fromIDs, b.associationLimit)
	results := make([][]models.Association, len(chunks))

	failures := b.settleAll(len(chunks), func(i int) (int, error) {
		edges, err := b.client.ReadAssociations(ctx, fromType, chunks[i], toType)
		if err != nil {
			return len(chunks[i]), err
		}
		results[i] = edges
		return len(chunks[i]), nil
	})

	if len(failures) == len(chunks) {
		return nil, failures, fmt.Errorf("%w: all %d association chunks failed", models.ErrUpstreamUnavailable, len(chunks))
	}

	var edges []models.Association
	for _, r := range results {
		edges = append(edges, r...)
	}
	return edges, failures, nil
}

// CreateAssociations creates an arbitrary number of association edges,
// chunked at the write batch limit
func (b *BatchClient) CreateAssociations(ctx context.Context, fromType, toType string, pairs []AssociationPair) ([]ChunkFailure, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	chunks := chunkPairs(pairs, b.writeLimit)

	failures := b.settleAll(len(chunks), func(i int) (int, error) {
		if err := b.client.CreateAssociations(ctx, fromType, toType, chunks[i]); err != nil {
			return len(chunks[i]), err
		}
		return len(chunks[i]), nil
	})

	if len(failures) == len(chunks) {
		return failures, fmt.Errorf("%w: all %d association create chunks failed", models.ErrUpstreamUnavailable, len(chunks))
	}

	return failures, nil
}

// ArchiveAssociations removes an arbitrary number of association edges,
// chunked at the write batch limit. Unlike reads, archive is used by
// compensation where every edge matters, so any chunk failure is an error.
func (b *BatchClient) ArchiveAssociations(ctx context.Context, fromType, toType string, pairs []AssociationPair) error {
	if len(pairs) == 0 {
		return nil
	}

	chunks := chunkPairs(pairs, b.writeLimit)

	failures := b.settleAll(len(chunks), func(i int) (int, error) {
		if err := b.client.ArchiveAssociations(ctx, fromType, toType, chunks[i]); err != nil {
			return len(chunks[i]), err
		}
		return len(chunks[i]), nil
	})

	if len(failures) > 0 {
		return fmt.Errorf("failed to archive %d of %d association chunks: %v",
			len(failures), len(chunks), failures[0].Err)
	}

	return nil
}

// settleAll runs one goroutine per chunk, waits for every chunk regardless
// of individual outcomes, and returns the failure log. Partial success is
// the whole point: a 250-item correction should still land on 200 items
// when one chunk of 50 times out.
func (b *BatchClient) settleAll(chunkCount int, call func(i int) (size int, err error)) []ChunkFailure {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []ChunkFailure
	)

	for i := 0; i < chunkCount; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			size, err := call(i)
			if err != nil {
				mu.Lock()
				failures = append(failures, ChunkFailure{Index: i, Size: size, Err: err})
				mu.Unlock()

				b.logger.WithError(err).WithFields(logrus.Fields{
					"chunk_index": i,
					"chunk_size":  size,
				}).Warn("Batch chunk failed")
			}
		}(i)
	}

	wg.Wait()
	return failures
}

func chunkStrings(items []string, limit int) [][]string {
	var chunks [][]string
	for start := 0; start < len(items); start += limit {
		end := start + limit
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func chunkInputs(items []ObjectInput, limit int) [][]ObjectInput {
	var chunks [][]ObjectInput
	for start := 0; start < len(items); start += limit {
		end := start + limit
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func chunkPairs(items []AssociationPair, limit int) [][]AssociationPair {
	var chunks [][]AssociationPair
	for start := 0; start < len(items); start += limit {
		end := start + limit
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// flattenObjects concatenates per-chunk results in chunk order, preserving
// each chunk's own item order
func flattenObjects(results [][]Object) []Object {
	var objects []Object
	for _, r := range results {
		objects = append(objects, r...)
	}
	return objects
}
