package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tripmatch/internal/model"
	"github.com/sells-group/tripmatch/internal/pipeline"
)

func makeDocs(n int) []namedDocument {
	docs := make([]namedDocument, n)
	for i := range docs {
		docs[i] = namedDocument{
			Path: fmt.Sprintf("doc-%d.json", i),
			Doc:  model.Document{ID: fmt.Sprintf("doc-%d", i), AccountID: "acct-a", Subject: "Flight"},
		}
	}
	return docs
}

func TestProcessBatch_Empty(t *testing.T) {
	summary, err := processBatch(context.Background(), nil, 10, 5, func(context.Context, model.Document) (*pipeline.Result, error) {
		t.Fatal("run should not be called for an empty batch")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, batchSummary{}, summary)
}

func TestProcessBatch_AppliesLimit(t *testing.T) {
	var calls atomic.Int64
	summary, err := processBatch(context.Background(), makeDocs(10), 3, 2, func(_ context.Context, doc model.Document) (*pipeline.Result, error) {
		calls.Add(1)
		return &pipeline.Result{DocumentID: doc.ID, Status: pipeline.StatusAssigned}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, int64(3), summary.Assigned)
}

func TestProcessBatch_CountsStatuses(t *testing.T) {
	statuses := map[string]pipeline.Status{
		"doc-0": pipeline.StatusAssigned,
		"doc-1": pipeline.StatusDuplicate,
		"doc-2": pipeline.StatusUnprocessable,
	}
	summary, err := processBatch(context.Background(), makeDocs(4), 0, 4, func(_ context.Context, doc model.Document) (*pipeline.Result, error) {
		st, ok := statuses[doc.ID]
		if !ok {
			return nil, errors.New("extract failed")
		}
		return &pipeline.Result{DocumentID: doc.ID, Status: st}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, batchSummary{Assigned: 1, Duplicate: 1, Unprocessable: 1, Failed: 1}, summary)
}

func TestProcessBatch_ZeroConcurrency(t *testing.T) {
	summary, err := processBatch(context.Background(), makeDocs(2), 0, 0, func(_ context.Context, doc model.Document) (*pipeline.Result, error) {
		return &pipeline.Result{DocumentID: doc.ID, Status: pipeline.StatusAssigned}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Assigned)
}

func TestLoadDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`{"account_id":"acct-b","subject":"Hotel"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"account_id":"acct-a","subject":"Flight","received_at":"2026-05-01T10:00:00Z"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	docs, err := loadDocuments(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "acct-a", docs[0].Doc.AccountID)
	assert.Equal(t, 2026, docs[0].Doc.ReceivedAt.Year())
	assert.Equal(t, "acct-b", docs[1].Doc.AccountID)
	assert.False(t, docs[1].Doc.ReceivedAt.IsZero())
}

func TestLoadDocuments_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"subject":"no account"}`), 0o600))

	_, err := loadDocuments(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")
}

func TestLoadDocuments_EmptyDir(t *testing.T) {
	docs, err := loadDocuments(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, docs)
}
