package ddbstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ValentinKolb/xkv/lib/db"
	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory DynamoDB mock keyed by the binary hash key.
type mockDDBClient struct {
	mu    sync.RWMutex
	items map[string]map[string]types.AttributeValue
	err   error // returned by every call if set
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[string]types.AttributeValue)}
}

func hashKey(key map[string]types.AttributeValue) string {
	return string(key[attrKey].(*types.AttributeValueMemberB).Value)
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[hashKey(params.Item)] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[hashKey(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	if params.ProjectionExpression != nil {
		item = map[string]types.AttributeValue{attrKey: item[attrKey]}
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (m *mockDDBClient) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, hashKey(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDDBClient) DescribeTable(_ context.Context, params *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   params.TableName,
		ItemCount:   aws.Int64(int64(len(m.items))),
		TableStatus: types.TableStatusActive,
	}}, nil
}

func TestDynamoStore(t *testing.T) {
	s := NewDynamoStore(newMockDDBClient(), Config{Table: "xkv"})
	key := []byte{0, 0, 0, 1, '7', 'n', 0, 0}

	_, ok, err := s.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(key, []byte("v1")))
	require.NoError(t, s.Set(key, []byte("v2")))

	val, ok, err := s.Get(key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), val)

	has, err := s.Has(key)
	require.NoError(t, err)
	assert.True(t, has)

	// empty values are stored as empty binaries
	require.NoError(t, s.Set([]byte("empty"), nil))
	val, ok, err = s.Get([]byte("empty"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, val)

	info, err := s.GetDBInfo()
	require.NoError(t, err)
	assert.Equal(t, 2, info.Entries)
	assert.Equal(t, db.ImplDynamoDB, info.DbType)

	require.NoError(t, s.Delete(key))
	has, err = s.Has(key)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestDynamoStoreErrors(t *testing.T) {
	client := newMockDDBClient()
	s := NewDynamoStore(client, Config{Table: "xkv"})

	_, err := s.Scan(nil)
	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, store.RetCUnsupportedOperation, storeErr.Code)

	client.err = &types.ResourceNotFoundException{Message: aws.String("no such table")}
	err = s.Set([]byte("k"), []byte("v"))
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, store.RetCUnavailable, storeErr.Code)

	client.err = context.DeadlineExceeded
	_, _, err = s.Get([]byte("k"))
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, store.RetCTimeout, storeErr.Code)

	client.err = errors.New("boom")
	_, err = s.Has([]byte("k"))
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, store.RetCInternalError, storeErr.Code)
}
