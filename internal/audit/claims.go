package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Claim states stored in the status attribute.
const (
	ClaimPending = "PENDING"
	ClaimDone    = "DONE"
)

// ClaimsAPI is the subset of the DynamoDB client used by Claims.
type ClaimsAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Claims records which submission payloads are in flight or processed.
// A PENDING claim whose lease has run out (the invocation crashed or timed
// out) can be taken again; a DONE claim never can.
type Claims struct {
	db        ClaimsAPI
	tableName string
	lease     time.Duration
	now       func() time.Time
}

// NewClaims returns a claim table for tableName.
func NewClaims(db ClaimsAPI, tableName string, lease time.Duration) *Claims {
	return &Claims{db: db, tableName: tableName, lease: lease, now: time.Now}
}

// SubmissionKey is the idempotency key for a payload.
func SubmissionKey(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Claim marks key as pending. It returns false when another delivery holds
// a live claim or already finished.
func (c *Claims) Claim(ctx context.Context, key string) (bool, error) {
	now := c.now()
	_, err := c.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"idempotencyKey": &types.AttributeValueMemberS{Value: key},
			"status":         &types.AttributeValueMemberS{Value: ClaimPending},
			"claimedAt":      &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
			"leaseUntil":     &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(c.lease).Unix(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(idempotencyKey) OR (#st = :pending AND leaseUntil < :now)"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: ClaimPending},
			":now":     &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return false, nil
		}
		return false, fmt.Errorf("claim submission %s: %w", key, err)
	}
	return true, nil
}

// Complete marks key as processed so later deliveries are ignored.
func (c *Claims) Complete(ctx context.Context, key string) error {
	_, err := c.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"idempotencyKey": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: aws.String("SET #st = :done, completedAt = :at REMOVE leaseUntil"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: ClaimDone},
			":at":   &types.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("complete submission %s: %w", key, err)
	}
	return nil
}

// Release drops the claim so a redelivery can process the submission again.
func (c *Claims) Release(ctx context.Context, key string) error {
	_, err := c.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"idempotencyKey": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return fmt.Errorf("release submission %s: %w", key, err)
	}
	return nil
}
