package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/dialcraft/router/internal/types"
	"github.com/rs/zerolog"
)

// DynamoAuditStore implements AuditStore using AWS DynamoDB. Routing
// records are only ever put, never updated or deleted.
type DynamoAuditStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoAuditStore creates the audit store
func NewDynamoAuditStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoAuditStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs on EC2
		// instances when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoAuditStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("dynamodb audit store initialized")

	return store, nil
}

// AppendRoutingRecord writes one audit row. Records carry a unique
// attempt ID in the sort key, so retried writes cannot clobber an
// earlier attempt.
func (s *DynamoAuditStore) AppendRoutingRecord(record types.RoutingRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal routing record: %w", err)
	}

	_, err = s.client.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(s.config.RoutingLogTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to append routing record: %w", err)
	}
	return nil
}

// ListRoutingRecords returns all audit rows for one date key
func (s *DynamoAuditStore) ListRoutingRecords(dateKey string) ([]types.RoutingRecord, error) {
	keyCond := expression.Key("DateKey").Equal(expression.Value(dateKey))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(context.Background(), &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.RoutingLogTable),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query routing records: %w", err)
	}

	var records []types.RoutingRecord
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal routing records: %w", err)
	}
	return records, nil
}

// NewAuditStore creates the appropriate audit store based on configuration
func NewAuditStore(ctx context.Context, logger zerolog.Logger) (AuditStore, error) {
	cfg := LoadDynamoConfig()

	switch cfg.Mode {
	case DynamoModeLocal, DynamoModeAWS:
		return NewDynamoAuditStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("dynamodb audit log disabled (DYNAMO_MODE=none)")
		return NewNoopAuditStore(), nil
	}
}
