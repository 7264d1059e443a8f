package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoRecord is the item shape stored in the cloud-table backend: the
// physical (already namespaced) key as the sole partition key, and the
// opaque value bytes.
type dynamoRecord struct {
	Key   string `dynamodbav:"pk"`
	Value []byte `dynamodbav:"value"`
}

// DynamoDBBackend is the cloud-table Backend implementation named in
// spec.md §4.D as the interchangeable alternative to the embedded backend,
// grounded on xmidt-org-argus's DynamoDB-backed store usage.
type DynamoDBBackend struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoDBBackend wraps an existing DynamoDB client for table.
func NewDynamoDBBackend(client *dynamodb.Client, table string) *DynamoDBBackend {
	return &DynamoDBBackend{client: client, table: table}
}

func (d *DynamoDBBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("storage: dynamodb GetItem: %w", err)
	}
	if out.Item == nil {
		return nil, false, nil
	}
	var rec dynamoRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, false, fmt.Errorf("storage: dynamodb unmarshal: %w", err)
	}
	return rec.Value, true, nil
}

func (d *DynamoDBBackend) Put(ctx context.Context, key string, value []byte) error {
	item, err := attributevalue.MarshalMap(dynamoRecord{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("storage: dynamodb marshal: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("storage: dynamodb PutItem: %w", err)
	}
	return nil
}

func (d *DynamoDBBackend) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return fmt.Errorf("storage: dynamodb DeleteItem: %w", err)
	}
	return nil
}

// ListWithPrefix scans the table for keys with the given prefix. DynamoDB
// has no native prefix query on a plain partition key, so this issues a
// filtered Scan; acceptable for Plaid's namespace sizes but not intended
// for very large shared databases.
func (d *DynamoDBBackend) ListWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var startKey map[string]types.AttributeValue
	for {
		out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(d.table),
			FilterExpression:  aws.String("begins_with(pk, :p)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":p": &types.AttributeValueMemberS{Value: prefix},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("storage: dynamodb Scan: %w", err)
		}
		for _, item := range out.Items {
			var rec dynamoRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err == nil {
				keys = append(keys, rec.Key)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return keys, nil
}
