package datastores

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/stevenmeyer142/pintler-va-app/internal/aws"
)

// DynamoStore keeps records in the HealthLakeDatastore table.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *DynamoStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

// Get fetches a record by id. Returns (nil, nil) if not found.
func (s *DynamoStore) Get(ctx context.Context, id string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(id),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var r Record
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &r, nil
}

// Create puts a new record, refusing to overwrite an existing id.
func (s *DynamoStore) Create(ctx context.Context, rec *Record) error {
	now := s.nowFunc()
	if rec.Status == "" {
		rec.Status = StatusInitialized
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      awsString("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": "id"},
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, rec.ID)
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Update applies the patch with a single conditional UpdateItem. The condition
// encodes the legal source statuses and the set-once datastore_id rule.
func (s *DynamoStore) Update(ctx context.Context, id string, patch Patch) (*Record, error) {
	now := s.nowFunc()

	sets := []string{"updated_at = :ua"}
	conds := []string{"attribute_exists(#id)"}
	names := map[string]string{"#id": "id"}
	values := map[string]types.AttributeValue{
		":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
	}

	if patch.Name != nil {
		sets = append(sets, "#n = :name")
		names["#n"] = "name"
		values[":name"] = &types.AttributeValueMemberS{Value: *patch.Name}
	}
	if patch.S3Output != nil {
		sets = append(sets, "s3_output = :s3o")
		values[":s3o"] = &types.AttributeValueMemberS{Value: *patch.S3Output}
	}
	if patch.DatastoreID != nil {
		sets = append(sets, "datastore_id = :did")
		conds = append(conds, "(attribute_not_exists(datastore_id) OR datastore_id = :did)")
		values[":did"] = &types.AttributeValueMemberS{Value: *patch.DatastoreID}
	}
	if patch.Status != nil {
		from := AllowedFrom(*patch.Status)
		if len(from) == 0 {
			return nil, fmt.Errorf("%w: nothing moves to %s", ErrIllegalTransition, *patch.Status)
		}
		placeholders := make([]string, len(from))
		for i, st := range from {
			ph := fmt.Sprintf(":from%d", i)
			placeholders[i] = ph
			values[ph] = &types.AttributeValueMemberS{Value: string(st)}
		}
		sets = append(sets, "#s = :status")
		conds = append(conds, fmt.Sprintf("#s IN (%s)", strings.Join(placeholders, ", ")))
		names["#s"] = "status"
		values[":status"] = &types.AttributeValueMemberS{Value: string(*patch.Status)}
	}
	if patch.StatusDescription != nil {
		sets = append(sets, "status_description = :sd")
		values[":sd"] = &types.AttributeValueMemberS{Value: *patch.StatusDescription}
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       s.key(id),
		UpdateExpression:          awsString("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       awsString(strings.Join(conds, " AND ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return nil, s.classify(ctx, id, patch)
		}
		return nil, fmt.Errorf("update item: %w", err)
	}

	var r Record
	if err := attributevalue.UnmarshalMap(out.Attributes, &r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &r, nil
}

// classify re-reads the record to explain a failed update condition.
func (s *DynamoStore) classify(ctx context.Context, id string, patch Patch) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("re-read after conditional failure: %w", err)
	}
	if err := patch.Check(current); err != nil {
		return err
	}
	// the record moved again between the update and the re-read
	return fmt.Errorf("%w: record %s changed concurrently", ErrIllegalTransition, id)
}

func (s *DynamoStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key:       s.key(id),
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// List scans the whole table, oldest record first.
func (s *DynamoStore) List(ctx context.Context) ([]Record, error) {
	var records []Record
	pages := dyn.NewScanPaginator(s.client, &dyn.ScanInput{TableName: &s.tableName})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var batch []Record
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal records: %w", err)
		}
		records = append(records, batch...)
	}
	sortRecords(records)
	return records, nil
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
