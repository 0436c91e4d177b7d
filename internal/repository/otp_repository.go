package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jmiconnect/portal/internal/models"
	"github.com/sirupsen/logrus"
)

// OTPRepository keeps password-reset OTP records in the shared DynamoDB table
// so that reset cycles survive restarts and work across replicas.
//
// Records carry no TTL attribute: a verified record must stay until it is
// consumed by a password reset or replaced by a new request.
type OTPRepository struct {
	client    DynamoDBAPI
	tableName string
	logger    *logrus.Logger
}

func NewOTPRepository(client DynamoDBAPI, tableName string, logger *logrus.Logger) *OTPRepository {
	return &OTPRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func otpPK(identifier string) string {
	return fmt.Sprintf("OTP#%s", identifier)
}

// Put replaces any record stored for identifier.
func (r *OTPRepository) Put(ctx context.Context, identifier string, record models.OTPRecord) error {
	item := itemKey(otpPK(identifier))
	item["Code"] = &types.AttributeValueMemberS{Value: record.Code}
	item["Used"] = &types.AttributeValueMemberBOOL{Value: record.Used}
	item["CreatedAt"] = &types.AttributeValueMemberS{Value: record.CreatedAt.Format(time.RFC3339Nano)}
	item["ExpiresAt"] = &types.AttributeValueMemberS{Value: record.ExpiresAt.Format(time.RFC3339Nano)}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in DynamoDB")
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	return nil
}

func (r *OTPRepository) Get(ctx context.Context, identifier string) (*models.OTPRecord, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            itemKey(otpPK(identifier)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	if result.Item == nil {
		return nil, ErrNotFound
	}

	var record models.OTPRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP data: %w", err)
	}

	return &record, nil
}

// MarkUsed flips Used to true only if the stored record is unused and holds
// code. It reports false when the condition did not hold.
func (r *OTPRepository) MarkUsed(ctx context.Context, identifier, code string) (bool, error) {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 itemKey(otpPK(identifier)),
		UpdateExpression:    aws.String("SET Used = :used"),
		ConditionExpression: aws.String("attribute_exists(PK) AND Used = :unused AND Code = :code"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":used":   &types.AttributeValueMemberBOOL{Value: true},
			":unused": &types.AttributeValueMemberBOOL{Value: false},
			":code":   &types.AttributeValueMemberS{Value: code},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		r.logger.WithError(err).Error("Failed to mark OTP as used in DynamoDB")
		return false, fmt.Errorf("failed to mark OTP used: %w", err)
	}

	return true, nil
}

// DeleteIfCode removes the record only while it still holds code.
func (r *OTPRepository) DeleteIfCode(ctx context.Context, identifier, code string) (bool, error) {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 itemKey(otpPK(identifier)),
		ConditionExpression: aws.String("Code = :code"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":code": &types.AttributeValueMemberS{Value: code},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete OTP: %w", err)
	}

	return true, nil
}
