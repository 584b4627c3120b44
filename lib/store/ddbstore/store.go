package ddbstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/xkv/lib/db"
	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

const (
	attrKey   = "k"
	attrValue = "v"
)

// DDBClient is the subset of the DynamoDB API used by the store.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Config configures the DynamoDB store
type Config struct {
	Table          string        // name of the table, the hash key is the binary attribute "k"
	Timeout        time.Duration // bound of a single request (0 = no bound)
	ConsistentRead bool          // use strongly consistent reads for Get and Has
}

type storeImpl struct {
	client DDBClient
	cfg    Config
}

// NewDynamoStore creates a store.IStore keeping one item per key in a DynamoDB table.
func NewDynamoStore(client DDBClient, cfg Config) store.IStore {
	return &storeImpl{client: client, cfg: cfg}
}

// NewDynamoStoreFromEnv creates a DynamoDB client from the default AWS configuration chain
// (environment, shared config files, instance roles) and returns a store on top of it.
func NewDynamoStoreFromEnv(ctx context.Context, cfg Config) (store.IStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg), nil
}

func (s *storeImpl) ctx() (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(context.Background(), s.cfg.Timeout)
	}
	return context.WithCancel(context.Background())
}

func (s *storeImpl) itemKey(key []byte) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrKey: &types.AttributeValueMemberB{Value: key},
	}
}

// errorOf maps errors of the DynamoDB client to store errors
func errorOf(op string, err error) error {
	var (
		notFound  *types.ResourceNotFoundException
		throttled *types.ProvisionedThroughputExceededException
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return store.NewError(store.RetCTimeout, fmt.Sprintf("%s: %v", op, err))
	case errors.As(err, &notFound), errors.As(err, &throttled):
		return store.NewError(store.RetCUnavailable, fmt.Sprintf("%s: %v", op, err))
	default:
		return store.NewError(store.RetCInternalError, fmt.Sprintf("%s: %v", op, err))
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key []byte, value []byte) error {
	ctx, cancel := s.ctx()
	defer cancel()

	if value == nil {
		value = []byte{}
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.cfg.Table),
		Item: map[string]types.AttributeValue{
			attrKey:   &types.AttributeValueMemberB{Value: key},
			attrValue: &types.AttributeValueMemberB{Value: value},
		},
	})
	if err != nil {
		return errorOf("PutItem", err)
	}
	return nil
}

func (s *storeImpl) Delete(key []byte) error {
	ctx, cancel := s.ctx()
	defer cancel()

	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.cfg.Table),
		Key:       s.itemKey(key),
	}); err != nil {
		return errorOf("DeleteItem", err)
	}
	return nil
}

func (s *storeImpl) get(key []byte, projection *string) (map[string]types.AttributeValue, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.cfg.Table),
		Key:                  s.itemKey(key),
		ConsistentRead:       aws.Bool(s.cfg.ConsistentRead),
		ProjectionExpression: projection,
	})
	if err != nil {
		return nil, errorOf("GetItem", err)
	}
	return out.Item, nil
}

func (s *storeImpl) Get(key []byte) ([]byte, bool, error) {
	item, err := s.get(key, nil)
	if err != nil || item == nil {
		return nil, false, err
	}
	val, ok := item[attrValue].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false, store.NewError(store.RetCInternalError, fmt.Sprintf("item has no binary attribute %q", attrValue))
	}
	return val.Value, true, nil
}

func (s *storeImpl) Has(key []byte) (bool, error) {
	item, err := s.get(key, aws.String(attrKey))
	if err != nil {
		return false, err
	}
	return item != nil, nil
}

// Scan is not supported, the table is hashed by key and has no order.
func (s *storeImpl) Scan([]byte) ([]store.KV, error) {
	return nil, store.NewError(store.RetCUnsupportedOperation, "Scan operation is not supported by the DynamoDB store")
}

// GetDBInfo reports the approximate item count and size DynamoDB publishes for the table (updated about every 6 hours).
func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.cfg.Table)})
	if err != nil {
		return db.DatabaseInfo{}, errorOf("DescribeTable", err)
	}

	info := db.DatabaseInfo{
		DbType:            db.ImplDynamoDB,
		SupportedFeatures: []db.Feature{db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureHas},
	}
	if t := out.Table; t != nil {
		info.Entries = int(aws.ToInt64(t.ItemCount))
		info.SizeBytes = int(aws.ToInt64(t.TableSizeBytes))
		info.Metadata = &struct {
			Table  string `json:"table"`
			Status string `json:"status"`
		}{
			Table:  aws.ToString(t.TableName),
			Status: string(t.TableStatus),
		}
		if t.TableStatus != types.TableStatusActive {
			log.Warningf("DynamoDB table %s is %s", s.cfg.Table, t.TableStatus)
		}
	}
	return info, nil
}
