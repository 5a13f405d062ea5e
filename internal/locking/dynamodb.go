package locking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/upfleet/upfleet/internal/logging"
)

// DynamoDBConfig holds configuration for DynamoDB-based locking.
// AWS credentials come from IAM roles, instance profiles, or environment
// variables; Endpoint is for LocalStack or custom endpoints.
type DynamoDBConfig struct {
	TableName       string        `json:"table_name"`
	Region          string        `json:"region"`
	Endpoint        string        `json:"endpoint,omitempty"`
	TTL             time.Duration `json:"ttl"`
	RefreshInterval time.Duration `json:"refresh_interval"`
}

// DynamoDBProvider implements distributed run locking with a conditional put
// against a TTL'd table, so a crashed holder's lock expires on its own
type DynamoDBProvider struct {
	client  *dynamodb.Client
	config  DynamoDBConfig
	ownerID string
	logger  *logging.Logger
}

// NewDynamoDBProvider creates a DynamoDB-backed lock provider
func NewDynamoDBProvider(cfg DynamoDBConfig) (*DynamoDBProvider, error) {
	if cfg.TableName == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = cfg.TTL / 5
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *dynamodb.Client
	if cfg.Endpoint != "" {
		client = dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	} else {
		client = dynamodb.NewFromConfig(awsCfg)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	provider := &DynamoDBProvider{
		client:  client,
		config:  cfg,
		ownerID: fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), time.Now().Unix()),
		logger:  logging.NewLogger("dynamodb-lock"),
	}

	if err := provider.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure DynamoDB table exists: %w", err)
	}
	return provider, nil
}

// ensureTable creates the lock table with TTL when it does not exist
func (p *DynamoDBProvider) ensureTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := p.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(p.config.TableName),
	})
	if err == nil {
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table: %w", err)
	}

	_, err = p.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(p.config.TableName),
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("LockID"),
				KeyType:       types.KeyTypeHash,
			},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("LockID"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to create DynamoDB table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(p.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(p.config.TableName),
	}, 5*time.Minute); err != nil {
		return fmt.Errorf("timeout waiting for table to become active: %w", err)
	}

	// TTL might already be enabled, or this might be LocalStack; not fatal
	_, _ = p.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(p.config.TableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String("TTL"),
			Enabled:       aws.Bool(true),
		},
	})

	return nil
}

// Acquire takes the fleet lock with a conditional put. A lock already held
// by another process yields ErrLockHeld without retrying: the caller reports
// the conflict to the operator instead of queueing behind it.
func (p *DynamoDBProvider) Acquire(ctx context.Context, key, operation string) (RunLock, error) {
	now := time.Now().UTC()
	ttlExpiry := now.Add(p.config.TTL).Unix()

	item := map[string]types.AttributeValue{
		"LockID":    &types.AttributeValueMemberS{Value: key},
		"Owner":     &types.AttributeValueMemberS{Value: p.ownerID},
		"Operation": &types.AttributeValueMemberS{Value: operation},
		"Created":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		"TTL":       &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlExpiry, 10)},
	}

	// Expired rows that DynamoDB has not purged yet are treated as free
	_, err := p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(p.config.TableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(LockID) OR #ttl < :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "TTL",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			return nil, ErrLockHeld
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	lock := &dynamoLock{
		id:          fmt.Sprintf("dynamodb-lock-%d", now.UnixNano()),
		key:         key,
		provider:    p,
		refreshStop: make(chan struct{}),
	}
	go p.refreshLock(lock)

	p.logger.Debugf("Acquired lock %s for %s", key, operation)
	return lock, nil
}

// refreshLock extends the TTL while the run is live
func (p *DynamoDBProvider) refreshLock(lock *dynamoLock) {
	ticker := time.NewTicker(p.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lock.refreshStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			ttlExpiry := time.Now().UTC().Add(p.config.TTL).Unix()

			_, err := p.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName: aws.String(p.config.TableName),
				Key: map[string]types.AttributeValue{
					"LockID": &types.AttributeValueMemberS{Value: lock.key},
				},
				UpdateExpression:    aws.String("SET #ttl = :ttl"),
				ConditionExpression: aws.String("#owner = :owner"),
				ExpressionAttributeNames: map[string]string{
					"#ttl":   "TTL",
					"#owner": "Owner",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":ttl":   &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlExpiry, 10)},
					":owner": &types.AttributeValueMemberS{Value: p.ownerID},
				},
			})
			cancel()
			if err != nil {
				p.logger.Warnf("Failed to refresh lock %s: %v", lock.key, err)
			}
		}
	}
}

// release deletes the lock row if this process still owns it
func (p *DynamoDBProvider) release(lock *dynamoLock) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := p.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(p.config.TableName),
		Key: map[string]types.AttributeValue{
			"LockID": &types.AttributeValueMemberS{Value: lock.key},
		},
		ConditionExpression: aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "Owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: p.ownerID},
		},
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			// Lock expired and was taken over; nothing left to release
			p.logger.Warnf("Lock %s no longer owned by this process", lock.key)
			return nil
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

type dynamoLock struct {
	id          string
	key         string
	provider    *DynamoDBProvider
	refreshStop chan struct{}

	releaseOnce sync.Once
}

func (l *dynamoLock) ID() string { return l.id }

func (l *dynamoLock) Release() error {
	var err error
	l.releaseOnce.Do(func() {
		close(l.refreshStop)
		err = l.provider.release(l)
	})
	return err
}
