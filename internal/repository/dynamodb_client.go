package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chat-api/internal/domain"
)

const attrSessionID = "session_id"

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client wraps a DynamoDB table of session turns keyed by (session_id, ts).
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// GetHistory returns at most limit of the most recent turns for a session,
// oldest first.
func (c *Client) GetHistory(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("repository: GetHistory: limit must be positive, got %d", limit)
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("#sid = :sid"),
		ExpressionAttributeNames: map[string]string{
			"#sid": attrSessionID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": &types.AttributeValueMemberS{Value: sessionID},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: GetHistory query: %w", err)
	}
	if out == nil {
		return nil, nil
	}

	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		var turn domain.Turn
		// Items whose attributes have the wrong type are skipped like any
		// other unusable record.
		if err := attributevalue.UnmarshalMap(item, &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	// Reverse to chronological order before returning to prompt assembly.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// PutTurn appends a turn. Writes are unconditional: a turn with the same
// session and timestamp overwrites the previous item.
func (c *Client) PutTurn(ctx context.Context, turn domain.Turn) error {
	if turn.SessionID == "" || turn.Timestamp == "" {
		return errors.New("repository: PutTurn: session_id and ts are required")
	}
	if !turn.Role.Valid() {
		return fmt.Errorf("repository: PutTurn: invalid role %q", turn.Role)
	}

	item, err := attributevalue.MarshalMap(turn)
	if err != nil {
		return fmt.Errorf("repository: PutTurn marshal: %w", err)
	}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: PutTurn: %w", err)
	}
	return nil
}
