package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/treekit/arbor/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI defines the interface for DynamoDB operations
type DynamoDBAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBCache implements CacheProvider using DynamoDB
type DynamoDBCache struct {
	client   DynamoDBAPI
	cacheTTL time.Duration
}

// NewDynamoDBCache creates a new DynamoDB cache provider
func NewDynamoDBCache() (*DynamoDBCache, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		return nil, err
	}

	return &DynamoDBCache{
		client:   dynamodb.NewFromConfig(cfg),
		cacheTTL: 5 * time.Minute,
	}, nil
}

// NewDynamoDBCacheWithClient creates a new DynamoDB cache provider with a custom client
func NewDynamoDBCacheWithClient(client DynamoDBAPI) *DynamoDBCache {
	return &DynamoDBCache{
		client:   client,
		cacheTTL: 5 * time.Minute,
	}
}

// Initialize creates the DynamoDB table if it doesn't exist
func (c *DynamoDBCache) Initialize() error {
	ctx := context.TODO()

	// Check if table exists
	_, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err == nil {
		// Table exists
		return nil
	}

	// Create table
	_, err = c.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("key"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("key"),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	return err
}

// GetSubtree retrieves a cached subtree response from DynamoDB if available
func (c *DynamoDBCache) GetSubtree(key SubtreeKey) (*TreeResponse, bool) {
	ctx := context.TODO()

	result, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(tableName),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key.String()},
		},
	})
	if err != nil {
		return nil, false
	}

	if result.Item == nil {
		return nil, false
	}

	var item CacheItem
	err = attributevalue.UnmarshalMap(result.Item, &item)
	if err != nil {
		return nil, false
	}

	// Check if cache is still valid
	now := time.Now().Unix()
	if now > item.TTL {
		// Cache expired, delete it
		if _, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(tableName),
			Key: map[string]types.AttributeValue{
				"key": &types.AttributeValueMemberS{Value: key.String()},
			},
		}); err != nil {
			// Log error but continue
			fmt.Printf("Warning: Error deleting expired cache item: %v\n", err)
		}
		return nil, false
	}

	return &TreeResponse{Data: item.Data, Rendered: item.Rendered}, true
}

// SetSubtree stores a subtree response in DynamoDB cache
func (c *DynamoDBCache) SetSubtree(key SubtreeKey, response *TreeResponse) {
	ctx := context.TODO()
	now := time.Now()
	ttl := now.Add(c.cacheTTL).Unix()

	item := CacheItem{
		Key:       key.String(),
		Data:      response.Data,
		Rendered:  response.Rendered,
		Timestamp: now.Unix(),
		TTL:       ttl,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		fmt.Printf("Warning: Error marshalling cache item: %v\n", err)
		return
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      av,
	})
	if err != nil {
		fmt.Printf("Warning: Error storing cache item: %v\n", err)
	}
}

// InvalidateCache removes all cached subtrees from DynamoDB
func (c *DynamoDBCache) InvalidateCache() {
	ctx := context.Background()

	result, err := c.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:            aws.String(tableName),
		ProjectionExpression: aws.String("#k"),
		ExpressionAttributeNames: map[string]string{
			"#k": "key",
		},
	})
	if err != nil {
		fmt.Printf("Warning: Error scanning cache table: %v\n", err)
		return
	}

	for _, item := range result.Items {
		keyAttr, ok := item["key"]
		if !ok {
			continue
		}
		if _, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(tableName),
			Key: map[string]types.AttributeValue{
				"key": keyAttr,
			},
		}); err != nil {
			fmt.Printf("Warning: Error deleting cache item: %v\n", err)
		}
	}
}

// SetCacheTTL sets the cache time-to-live duration
func (c *DynamoDBCache) SetCacheTTL(ttl time.Duration) {
	c.cacheTTL = ttl
}

const tableName = "SubtreeCache"

type CacheItem struct {
	Key       string         `dynamodbav:"key"`
	Data      []*models.Node `dynamodbav:"data"`
	Rendered  string         `dynamodbav:"rendered"`
	Timestamp int64          `dynamodbav:"timestamp"`
	TTL       int64          `dynamodbav:"ttl"`
}
