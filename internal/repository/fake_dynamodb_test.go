package repository

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

// fakeDynamoDB is an in-memory DynamoDBAPI that understands the small set of
// expressions the repositories issue: "a = :v" comparisons joined by AND,
// attribute_exists/attribute_not_exists, and "SET a = :v, ..." updates.
type fakeDynamoDB struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{items: make(map[string]map[string]types.AttributeValue)}
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func keyOf(item map[string]types.AttributeValue) string {
	return stringAttr(item["PK"]) + "|" + stringAttr(item["SK"])
}

func stringAttr(v types.AttributeValue) string {
	if s, ok := v.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func attrEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		return names[name]
	}
	return name
}

func conditionHolds(item map[string]types.AttributeValue, expr *string, names map[string]string, values map[string]types.AttributeValue) bool {
	if expr == nil {
		return true
	}
	for _, clause := range strings.Split(*expr, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_exists("):
			attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_exists("), ")"), names)
			if _, ok := item[attr]; item == nil || !ok {
				return false
			}
		case strings.HasPrefix(clause, "attribute_not_exists("):
			attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")"), names)
			if _, ok := item[attr]; item != nil && ok {
				return false
			}
		default:
			parts := strings.SplitN(clause, " = ", 2)
			if len(parts) != 2 || item == nil {
				return false
			}
			if !attrEqual(item[resolveName(parts[0], names)], values[parts[1]]) {
				return false
			}
		}
	}
	return true
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func (f *fakeDynamoDB) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	item, ok := f.items[keyOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *fakeDynamoDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	key := keyOf(in.Item)
	if !conditionHolds(f.items[key], in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, conditionFailed()
	}
	f.items[key] = copyItem(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	key := keyOf(in.Key)
	item := f.items[key]
	if !conditionHolds(item, in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, conditionFailed()
	}
	if item == nil {
		item = copyItem(in.Key)
	}

	set := strings.TrimPrefix(aws.ToString(in.UpdateExpression), "SET ")
	for _, assignment := range strings.Split(set, ",") {
		parts := strings.SplitN(strings.TrimSpace(assignment), " = ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("unsupported update expression %q", aws.ToString(in.UpdateExpression))
		}
		item[resolveName(parts[0], in.ExpressionAttributeNames)] = in.ExpressionAttributeValues[parts[1]]
	}
	f.items[key] = item
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamoDB) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	key := keyOf(in.Key)
	if !conditionHolds(f.items[key], in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, conditionFailed()
	}
	delete(f.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamoDB) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if !conditionHolds(item, in.KeyConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
			continue
		}
		out = append(out, copyItem(item))
		if in.Limit != nil && int32(len(out)) >= *in.Limit {
			break
		}
	}
	return &dynamodb.QueryOutput{Items: out, Count: int32(len(out))}, nil
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
