package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of *dynamodb.Client the store calls.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

func NewDynamoDBClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

type dynamoItem struct {
	PK        string `dynamodbav:"PK"`
	Payload   string `dynamodbav:"payload"`
	CreatedAt int64  `dynamodbav:"created_at"`
	// ExpiresAt is the table's TTL attribute, in epoch seconds.
	ExpiresAt int64 `dynamodbav:"expires_at"`
}

// DynamoStore keeps one item per record under PK "ESCROW#<id>". DynamoDB
// TTL deletes expired items eventually, so reads check expires_at too.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

func NewDynamoStore(client DynamoAPI, tableName string, ttl time.Duration) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, ttl: normalizeTTL(ttl), now: time.Now}
}

func escrowKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "ESCROW#" + id},
	}
}

func (s *DynamoStore) Put(ctx context.Context, payload json.RawMessage) (string, error) {
	if err := checkPayload(payload); err != nil {
		return "", err
	}
	id := NewID()
	now := s.now()
	av, err := attributevalue.MarshalMap(dynamoItem{
		PK:        "ESCROW#" + id,
		Payload:   string(payload),
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal escrow item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return "", ErrDuplicateID
	}
	if err != nil {
		return "", fmt.Errorf("put escrow item: %w", err)
	}
	return id, nil
}

func (s *DynamoStore) Get(ctx context.Context, id string) (json.RawMessage, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            escrowKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get escrow item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal escrow item: %w", err)
	}
	if s.now().Unix() >= item.ExpiresAt {
		return nil, ErrNotFound
	}
	return json.RawMessage(item.Payload), nil
}

func (s *DynamoStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 escrowKey(id),
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete escrow item: %w", err)
	}
	return nil
}

// PurgeExpired is a no-op: the table's TTL on expires_at removes items.
func (s *DynamoStore) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
