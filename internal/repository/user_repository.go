package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jmiconnect/portal/internal/models"
	"github.com/sirupsen/logrus"
)

// UserRepository reads and updates account documents. The username is the
// document id; emails are looked up through a global secondary index on the
// "email" attribute.
type UserRepository struct {
	client     DynamoDBAPI
	tableName  string
	emailIndex string
	logger     *logrus.Logger
}

func NewUserRepository(client DynamoDBAPI, tableName, emailIndex string, logger *logrus.Logger) *UserRepository {
	return &UserRepository{
		client:     client,
		tableName:  tableName,
		emailIndex: emailIndex,
		logger:     logger,
	}
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{Username: username}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(user.GetPK()),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get user from DynamoDB")
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if result.Item == nil {
		return nil, ErrNotFound
	}

	var dbUser models.User
	if err := attributevalue.UnmarshalMap(result.Item, &dbUser); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal user from DynamoDB")
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	if dbUser.Username == "" {
		dbUser.Username = username
	}

	return &dbUser, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(r.emailIndex),
		KeyConditionExpression: aws.String("email = :email"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to query user by email")
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}

	if len(result.Items) == 0 {
		return nil, ErrNotFound
	}

	var dbUser models.User
	if err := attributevalue.UnmarshalMap(result.Items[0], &dbUser); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &dbUser, nil
}

// GetByIdentifier resolves identifier as a username first and falls back to
// an email lookup.
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	user, err := r.GetByUsername(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return r.GetByEmail(ctx, identifier)
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal user for DynamoDB")
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: user.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: user.GetSK()}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("user already exists")
		}
		r.logger.WithError(err).Error("Failed to create user in DynamoDB")
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// UpdatePassword stores a new password hash on an existing account.
func (r *UserRepository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	user := &models.User{Username: username}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 itemKey(user.GetPK()),
		UpdateExpression:    aws.String("SET #password = :password, updated_at = :updated_at"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{
			"#password": "password",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":password":   &types.AttributeValueMemberS{Value: passwordHash},
			":updated_at": &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		r.logger.WithError(err).Error("Failed to update user password in DynamoDB")
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}

// UpdateProfile writes the non-empty fields of update onto an existing
// account in a single conditional write.
func (r *UserRepository) UpdateProfile(ctx context.Context, username string, update models.ProfileUpdate) error {
	user := &models.User{Username: username}

	assignments := []string{"updated_at = :updated_at"}
	names := map[string]string{}
	values := map[string]types.AttributeValue{
		":updated_at": &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339)},
	}
	if update.Email != "" {
		assignments = append(assignments, "email = :email")
		values[":email"] = &types.AttributeValueMemberS{Value: update.Email}
	}
	if update.Mobile != "" {
		assignments = append(assignments, "mobile = :mobile")
		values[":mobile"] = &types.AttributeValueMemberS{Value: update.Mobile}
	}
	if update.PasswordHash != "" {
		assignments = append(assignments, "#password = :password")
		names["#password"] = "password"
		values[":password"] = &types.AttributeValueMemberS{Value: update.PasswordHash}
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       itemKey(user.GetPK()),
		UpdateExpression:          aws.String("SET " + strings.Join(assignments, ", ")),
		ConditionExpression:       aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: values,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	if _, err := r.client.UpdateItem(ctx, input); err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		r.logger.WithError(err).WithField("username", username).Error("Failed to update user profile in DynamoDB")
		return fmt.Errorf("failed to update profile: %w", err)
	}

	return nil
}
