package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/ignite/prospect-crm/internal/domain"
)

// ErrJobNotFound is returned when a ledger entry does not exist.
var ErrJobNotFound = domain.ErrImportJobNotFound

// DynamoAPI is the subset of the DynamoDB client used by the ledger.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

const jobSortKey = "JOB"

// jobItem is the DynamoDB shape of an import job.
type jobItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	SessionID    string `dynamodbav:"SessionID"`
	Filename     string `dynamodbav:"Filename"`
	ImportedBy   string `dynamodbav:"ImportedBy"`
	Status       string `dynamodbav:"Status"`
	Total        int    `dynamodbav:"Total"`
	Companies    int    `dynamodbav:"Companies"`
	Contacts     int    `dynamodbav:"Contacts"`
	Phones       int    `dynamodbav:"Phones"`
	ErrorMessage string `dynamodbav:"ErrorMessage,omitempty"`
	StartedAt    string `dynamodbav:"StartedAt"`
	CompletedAt  string `dynamodbav:"CompletedAt,omitempty"`
	TTL          int64  `dynamodbav:"TTL,omitempty"`
}

// JobLedger journals import jobs in a DynamoDB table keyed by PK/SK, for
// deployments that keep the journal out of the CRM database.
type JobLedger struct {
	client    DynamoAPI
	table     string
	retention time.Duration
	now       func() time.Time
}

// NewJobLedger wraps an existing DynamoDB client. A zero retention keeps
// entries forever.
func NewJobLedger(client DynamoAPI, table string, retention time.Duration) *JobLedger {
	return &JobLedger{client: client, table: table, retention: retention, now: time.Now}
}

// NewDynamoClient builds a DynamoDB client from the default AWS configuration.
func NewDynamoClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	if region == "" {
		region = "eu-west-3"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

func jobKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "IMPORT#" + id},
		"SK": &types.AttributeValueMemberS{Value: jobSortKey},
	}
}

// Start records a running job and returns its ID.
func (l *JobLedger) Start(ctx context.Context, job *domain.ImportJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := l.now().UTC()
	item := jobItem{
		PK:         "IMPORT#" + job.ID,
		SK:         jobSortKey,
		SessionID:  job.SessionID,
		Filename:   job.Filename,
		ImportedBy: job.ImportedBy,
		Status:     string(domain.ImportJobRunning),
		Total:      job.Total,
		StartedAt:  now.Format(time.RFC3339),
	}
	if l.retention > 0 {
		item.TTL = now.Add(l.retention).Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return "", fmt.Errorf("marshaling job: %w", err)
	}
	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.table),
		Item:      av,
	})
	if err != nil {
		return "", fmt.Errorf("putting job to DynamoDB: %w", err)
	}
	job.Status = domain.ImportJobRunning
	job.StartedAt = now
	return job.ID, nil
}

// Complete closes a job with the written counts.
func (l *JobLedger) Complete(ctx context.Context, id string, counts domain.ImportCounts) error {
	return l.finish(ctx, id, domain.ImportJobCompleted, counts, "")
}

// Fail closes a job with the partial counts and the error message.
func (l *JobLedger) Fail(ctx context.Context, id string, counts domain.ImportCounts, msg string) error {
	return l.finish(ctx, id, domain.ImportJobFailed, counts, msg)
}

func (l *JobLedger) finish(ctx context.Context, id string, status domain.ImportJobStatus, c domain.ImportCounts, msg string) error {
	values, err := attributevalue.MarshalMap(map[string]interface{}{
		":status":    string(status),
		":companies": c.Companies,
		":contacts":  c.Contacts,
		":phones":    c.Phones,
		":error":     msg,
		":completed": l.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshaling job update: %w", err)
	}

	_, err = l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(l.table),
		Key:                 jobKey(id),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		UpdateExpression: aws.String("SET #status = :status, Companies = :companies, Contacts = :contacts, " +
			"Phones = :phones, ErrorMessage = :error, CompletedAt = :completed"),
		ExpressionAttributeNames:  map[string]string{"#status": "Status"},
		ExpressionAttributeValues: values,
	})
	var notFound *types.ConditionalCheckFailedException
	if errors.As(err, &notFound) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("updating job in DynamoDB: %w", err)
	}
	return nil
}

// Get returns a single job.
func (l *JobLedger) Get(ctx context.Context, id string) (*domain.ImportJob, error) {
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(l.table),
		Key:       jobKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("getting job from DynamoDB: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrJobNotFound
	}

	var item jobItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling job: %w", err)
	}
	job := &domain.ImportJob{
		ID:           id,
		SessionID:    item.SessionID,
		Filename:     item.Filename,
		ImportedBy:   item.ImportedBy,
		Status:       domain.ImportJobStatus(item.Status),
		Total:        item.Total,
		Counts:       domain.ImportCounts{Companies: item.Companies, Contacts: item.Contacts, Phones: item.Phones},
		ErrorMessage: item.ErrorMessage,
	}
	if t, err := time.Parse(time.RFC3339, item.StartedAt); err == nil {
		job.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339, item.CompletedAt); err == nil {
		job.CompletedAt = &t
	}
	return job, nil
}
