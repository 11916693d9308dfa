package milvus

import (
	"context"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Controversy-Insight/internal/config"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

// mockMilvusClient embeds the SDK interface and overrides what the tests
// exercise.
type mockMilvusClient struct {
	client.Client

	checkHealthFunc      func(ctx context.Context) (*entity.MilvusState, error)
	hasCollectionFunc    func(ctx context.Context, name string) (bool, error)
	createCollectionFunc func(ctx context.Context, schema *entity.Schema, shards int32, opts ...client.CreateCollectionOption) error
	createIndexFunc      func(ctx context.Context, collName, fieldName string, idx entity.Index, async bool, opts ...client.IndexOption) error
	loadCollectionFunc   func(ctx context.Context, name string, async bool, opts ...client.LoadCollectionOption) error
	insertFunc           func(ctx context.Context, collName, partition string, columns ...entity.Column) (entity.Column, error)
	flushFunc            func(ctx context.Context, collName string, async bool) error
	deleteFunc           func(ctx context.Context, collName, partition, expr string) error
	closed               bool
}

func (m *mockMilvusClient) CheckHealth(ctx context.Context) (*entity.MilvusState, error) {
	if m.checkHealthFunc != nil {
		return m.checkHealthFunc(ctx)
	}
	return &entity.MilvusState{}, nil
}

func (m *mockMilvusClient) HasCollection(ctx context.Context, name string) (bool, error) {
	if m.hasCollectionFunc != nil {
		return m.hasCollectionFunc(ctx, name)
	}
	return false, nil
}

func (m *mockMilvusClient) CreateCollection(ctx context.Context, schema *entity.Schema, shards int32, opts ...client.CreateCollectionOption) error {
	if m.createCollectionFunc != nil {
		return m.createCollectionFunc(ctx, schema, shards, opts...)
	}
	return nil
}

func (m *mockMilvusClient) CreateIndex(ctx context.Context, collName, fieldName string, idx entity.Index, async bool, opts ...client.IndexOption) error {
	if m.createIndexFunc != nil {
		return m.createIndexFunc(ctx, collName, fieldName, idx, async, opts...)
	}
	return nil
}

func (m *mockMilvusClient) LoadCollection(ctx context.Context, name string, async bool, opts ...client.LoadCollectionOption) error {
	if m.loadCollectionFunc != nil {
		return m.loadCollectionFunc(ctx, name, async, opts...)
	}
	return nil
}

func (m *mockMilvusClient) Insert(ctx context.Context, collName, partition string, columns ...entity.Column) (entity.Column, error) {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, collName, partition, columns...)
	}
	return nil, nil
}

func (m *mockMilvusClient) Flush(ctx context.Context, collName string, async bool, opts ...client.FlushOption) error {
	if m.flushFunc != nil {
		return m.flushFunc(ctx, collName, async)
	}
	return nil
}

func (m *mockMilvusClient) Delete(ctx context.Context, collName, partition, expr string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, collName, partition, expr)
	}
	return nil
}

func (m *mockMilvusClient) Close() error {
	m.closed = true
	return nil
}

// withFactory swaps the SDK factory for the duration of a test.
func withFactory(t *testing.T, mock client.Client) {
	t.Helper()
	orig := newMilvusClient
	newMilvusClient = func(ctx context.Context, conf client.Config) (client.Client, error) {
		return mock, nil
	}
	t.Cleanup(func() { newMilvusClient = orig })
}

func TestNewClient_RequiresAddress(t *testing.T) {
	_, err := NewClient(config.MilvusConfig{}, logging.NewNopLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestNewClient_Connects(t *testing.T) {
	mock := &mockMilvusClient{}
	withFactory(t, mock)

	c, err := NewClient(config.MilvusConfig{Addr: "localhost:19530"}, logging.NewNopLogger())
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.IsHealthy())
	assert.Same(t, mock, c.SDK().(*mockMilvusClient))
}

func TestNewClient_UnhealthyAtStartup(t *testing.T) {
	mock := &mockMilvusClient{
		checkHealthFunc: func(ctx context.Context) (*entity.MilvusState, error) {
			return nil, assert.AnError
		},
	}
	withFactory(t, mock)

	_, err := NewClient(config.MilvusConfig{Addr: "localhost:19530"}, logging.NewNopLogger())
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.True(t, mock.closed)
}

func TestClient_CheckHealth_TracksState(t *testing.T) {
	healthy := true
	mock := &mockMilvusClient{
		checkHealthFunc: func(ctx context.Context) (*entity.MilvusState, error) {
			if healthy {
				return &entity.MilvusState{}, nil
			}
			return nil, assert.AnError
		},
	}
	withFactory(t, mock)

	c, err := NewClient(config.MilvusConfig{Addr: "localhost:19530"}, logging.NewNopLogger())
	require.NoError(t, err)
	defer c.Close()

	healthy = false
	err = c.CheckHealth(context.Background())
	assert.ErrorIs(t, err, ErrUnhealthy)
	assert.False(t, c.IsHealthy())

	healthy = true
	require.NoError(t, c.CheckHealth(context.Background()))
	assert.True(t, c.IsHealthy())
}
