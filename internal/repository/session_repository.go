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

// SessionRepository keeps one session document per username.
type SessionRepository struct {
	client    DynamoDBAPI
	tableName string
	logger    *logrus.Logger
}

func NewSessionRepository(client DynamoDBAPI, tableName string, logger *logrus.Logger) *SessionRepository {
	return &SessionRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func sessionPK(username string) string {
	return fmt.Sprintf("SESSION#%s", username)
}

// Store replaces the user's session with session and sets a TTL at its expiry.
func (r *SessionRepository) Store(ctx context.Context, session models.Session) error {
	item, err := attributevalue.MarshalMap(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	for k, v := range itemKey(sessionPK(session.Username)) {
		item[k] = v
	}
	item["TTL"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", session.ExpiresAt.Unix())}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to store session in DynamoDB")
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

// Get returns the live session for username. Sessions past their expiry are
// reported as not found even if DynamoDB has not reaped them yet.
func (r *SessionRepository) Get(ctx context.Context, username string) (*models.Session, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(sessionPK(username)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if result.Item == nil {
		return nil, ErrNotFound
	}

	var session models.Session
	if err := attributevalue.UnmarshalMap(result.Item, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if time.Now().After(session.ExpiresAt) {
		return nil, ErrNotFound
	}

	return &session, nil
}

// Delete removes the user's session if it is still sessionID. A session that
// was already replaced by a newer login is left alone.
func (r *SessionRepository) Delete(ctx context.Context, username, sessionID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 itemKey(sessionPK(username)),
		ConditionExpression: aws.String("session_id = :session_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}
