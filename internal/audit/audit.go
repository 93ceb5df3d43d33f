// Package audit writes outcome records and idempotency claims to DynamoDB.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"release-ingest/internal/models"
)

// DynamoAPI is the subset of the DynamoDB client used here.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// NewDynamoClient builds a client, pointing it at endpoint when set (local DynamoDB).
func NewDynamoClient(cfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// Writer appends audit records to a table keyed by email and fileName.
type Writer struct {
	db        DynamoAPI
	tableName string
}

// NewWriter returns a Writer for tableName.
func NewWriter(db DynamoAPI, tableName string) *Writer {
	return &Writer{db: db, tableName: tableName}
}

// Record puts the record.
func (w *Writer) Record(ctx context.Context, record models.AuditRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	_, err = w.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(w.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put error: %w", err)
	}
	return nil
}

// Replay writes a dead-lettered record unless one already exists for the
// same email and fileName. It reports whether the record was written.
func (w *Writer) Replay(ctx context.Context, record models.AuditRecord) (bool, error) {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return false, fmt.Errorf("marshal audit record: %w", err)
	}
	_, err = w.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(w.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(email) AND attribute_not_exists(fileName)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return false, nil
		}
		return false, fmt.Errorf("dynamodb put error: %w", err)
	}
	return true, nil
}
