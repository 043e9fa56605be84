package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/corpusdb/blobstore"
)

// DDBCommitStore tracks the latest committed snapshot in DynamoDB.
// S3 has no compare-and-swap, so concurrent writers racing to publish
// "the latest snapshot" could silently overwrite each other. DynamoDB
// conditional writes give each commit a monotonically increasing
// version; exactly one racing writer wins a given version.
//
// Table schema:
//   - Partition key: base_uri (string) - the snapshot namespace
//   - Sort key: version (number) - monotonically increasing version
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name corpusdb-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	client    DDBClient
	tableName string
	baseURI   string
}

// DDBClient is the subset of DynamoDB operations the commit store
// needs. Satisfied by *dynamodb.Client.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ErrConcurrentModification is returned when another writer committed
// the same version first.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// NewDDBCommitStore creates a commit store. baseURI namespaces the
// commit log, typically "s3://bucket/prefix".
func NewDDBCommitStore(client DDBClient, tableName, baseURI string) *DDBCommitStore {
	return &DDBCommitStore{
		client:    client,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Latest returns the blob name of the most recently committed
// snapshot. Returns blobstore.ErrNotFound when nothing has been
// committed yet.
func (s *DDBCommitStore) Latest(ctx context.Context) (string, error) {
	_, name, err := s.latest(ctx)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", blobstore.ErrNotFound
	}
	return name, nil
}

// Commit records a snapshot as the latest via a conditional write.
func (s *DDBCommitStore) Commit(ctx context.Context, snapshotName string) error {
	version, _, err := s.latest(ctx)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":      &types.AttributeValueMemberS{Value: s.baseURI},
			"version":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", version+1)},
			"snapshot_name": &types.AttributeValueMemberS{Value: snapshotName},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit version to DynamoDB: %w", err)
	}
	return nil
}

func (s *DDBCommitStore) latest(ctx context.Context) (uint64, string, error) {
	resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to query DynamoDB: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid version attribute in DynamoDB")
	}
	nameAttr, ok := item["snapshot_name"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid snapshot_name attribute in DynamoDB")
	}

	var version uint64
	if _, err := fmt.Sscanf(versionAttr.Value, "%d", &version); err != nil {
		return 0, "", fmt.Errorf("failed to parse version: %w", err)
	}
	return version, nameAttr.Value, nil
}
