package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"text-adapter/internal/domain"
)

const (
	skProfile = "PROFILE#"
	skVerify  = "VERIFY#"
	skLock    = "LOCK#"
)

var (
	// ErrNotFound is returned when the requested item does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict is returned when a username or email is already taken.
	ErrConflict = errors.New("repository: username or email already registered")
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client stores user accounts and verification codes in one DynamoDB table.
// Username and email uniqueness is enforced with lock items written in the
// same transaction as the profile.
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

func userPK(userID string) string {
	return "USER#" + userID
}

func usernamePK(username string) string {
	return "USERNAME#" + strings.ToLower(strings.TrimSpace(username))
}

func emailPK(email string) string {
	return "EMAIL#" + strings.ToLower(strings.TrimSpace(email))
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// CreateUser writes the profile and both uniqueness locks atomically.
func (c *Client) CreateUser(ctx context.Context, u domain.User) error {
	if u.ID == "" {
		return errors.New("repository: CreateUser: user ID is required")
	}
	notExists := aws.String("attribute_not_exists(PK)")
	lock := func(pk string) map[string]types.AttributeValue {
		item := key(pk, skLock)
		item["userId"] = &types.AttributeValueMemberS{Value: u.ID}
		return item
	}

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: aws.String(c.tableName), Item: userItem(u), ConditionExpression: notExists}},
			{Put: &types.Put{TableName: aws.String(c.tableName), Item: lock(usernamePK(u.Username)), ConditionExpression: notExists}},
			{Put: &types.Put{TableName: aws.String(c.tableName), Item: lock(emailPK(u.Email)), ConditionExpression: notExists}},
		},
	})
	if err != nil {
		if conditionFailed(err) {
			return fmt.Errorf("repository: CreateUser: %w", ErrConflict)
		}
		return fmt.Errorf("repository: CreateUser: %w", err)
	}
	return nil
}

// DeleteUser removes the profile, both locks and any pending verification
// code. Used to roll back a registration whose confirmation could not be sent.
func (c *Client) DeleteUser(ctx context.Context, u domain.User) error {
	del := func(pk, sk string) types.TransactWriteItem {
		return types.TransactWriteItem{Delete: &types.Delete{TableName: aws.String(c.tableName), Key: key(pk, sk)}}
	}
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			del(userPK(u.ID), skProfile),
			del(userPK(u.ID), skVerify),
			del(usernamePK(u.Username), skLock),
			del(emailPK(u.Email), skLock),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteUser: %w", err)
	}
	return nil
}

// GetUser returns the profile for userID or ErrNotFound.
func (c *Client) GetUser(ctx context.Context, userID string) (domain.User, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(userPK(userID), skProfile),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUser get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.User{}, ErrNotFound
	}
	u, err := itemToUser(out.Item)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUser decode: %w", err)
	}
	return u, nil
}

// FindUserIDByLogin resolves a username, then an email, to a user ID.
func (c *Client) FindUserIDByLogin(ctx context.Context, login string) (string, error) {
	for _, pk := range []string{usernamePK(login), emailPK(login)} {
		out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(c.tableName),
			Key:            key(pk, skLock),
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return "", fmt.Errorf("repository: FindUserIDByLogin get item: %w", err)
		}
		if out == nil || len(out.Item) == 0 {
			continue
		}
		id, err := strAttr(out.Item, "userId")
		if err != nil {
			return "", fmt.Errorf("repository: FindUserIDByLogin decode: %w", err)
		}
		return id, nil
	}
	return "", ErrNotFound
}

// ActivateUser marks the user active and consumes the verification code in
// one transaction.
func (c *Client) ActivateUser(ctx context.Context, userID string, verifiedAt time.Time) error {
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName:           aws.String(c.tableName),
					Key:                 key(userPK(userID), skProfile),
					UpdateExpression:    aws.String("SET #status = :status, verifiedAt = :verifiedAt"),
					ConditionExpression: aws.String("attribute_exists(PK)"),
					ExpressionAttributeNames: map[string]string{
						"#status": "status",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":status":     &types.AttributeValueMemberS{Value: domain.UserStatusActive},
						":verifiedAt": &types.AttributeValueMemberS{Value: verifiedAt.UTC().Format(time.RFC3339)},
					},
				},
			},
			{
				Delete: &types.Delete{
					TableName: aws.String(c.tableName),
					Key:       key(userPK(userID), skVerify),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: ActivateUser: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored password hash of an existing user.
func (c *Client) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 key(userPK(userID), skProfile),
		UpdateExpression:    aws.String("SET passwordHash = :hash"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":hash": &types.AttributeValueMemberS{Value: hash},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("repository: UpdatePasswordHash: %w", ErrNotFound)
		}
		return fmt.Errorf("repository: UpdatePasswordHash: %w", err)
	}
	return nil
}

// PutVerificationCode stores code, replacing any earlier code for the user.
// The item expires through the table TTL at ExpiresAt.
func (c *Client) PutVerificationCode(ctx context.Context, code domain.VerificationCode) error {
	if code.UserID == "" || code.Code == "" {
		return errors.New("repository: PutVerificationCode: user ID and code are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      verificationItem(code),
	})
	if err != nil {
		return fmt.Errorf("repository: PutVerificationCode: %w", err)
	}
	return nil
}

// GetVerificationCode returns the pending code for userID or ErrNotFound.
func (c *Client) GetVerificationCode(ctx context.Context, userID string) (domain.VerificationCode, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(userPK(userID), skVerify),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.VerificationCode{}, fmt.Errorf("repository: GetVerificationCode get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.VerificationCode{}, ErrNotFound
	}

	code, err := strAttr(out.Item, "code")
	if err != nil {
		return domain.VerificationCode{}, fmt.Errorf("repository: GetVerificationCode decode: %w", err)
	}
	createdAt, err := timeAttr(out.Item, "createdAt")
	if err != nil {
		return domain.VerificationCode{}, fmt.Errorf("repository: GetVerificationCode decode: %w", err)
	}
	expiresAt, err := timeAttr(out.Item, "expiresAt")
	if err != nil {
		return domain.VerificationCode{}, fmt.Errorf("repository: GetVerificationCode decode: %w", err)
	}
	return domain.VerificationCode{
		UserID:    userID,
		Code:      code,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// conditionFailed reports whether a canceled transaction failed on a
// condition check rather than on throttling or a concurrent write.
func conditionFailed(err error) bool {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return false
	}
	for _, r := range canceled.CancellationReasons {
		if aws.ToString(r.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

func userItem(u domain.User) map[string]types.AttributeValue {
	item := key(userPK(u.ID), skProfile)
	item["userId"] = &types.AttributeValueMemberS{Value: u.ID}
	item["username"] = &types.AttributeValueMemberS{Value: u.Username}
	item["email"] = &types.AttributeValueMemberS{Value: u.Email}
	item["passwordHash"] = &types.AttributeValueMemberS{Value: u.PasswordHash}
	item["nativeLang"] = &types.AttributeValueMemberS{Value: u.NativeLanguage}
	item["russianLevel"] = &types.AttributeValueMemberS{Value: u.RussianLevel}
	item["status"] = &types.AttributeValueMemberS{Value: u.Status}
	item["registeredAt"] = &types.AttributeValueMemberS{Value: u.RegisteredAt.UTC().Format(time.RFC3339)}
	if u.VerifiedAt != nil {
		item["verifiedAt"] = &types.AttributeValueMemberS{Value: u.VerifiedAt.UTC().Format(time.RFC3339)}
	}
	return item
}

func verificationItem(v domain.VerificationCode) map[string]types.AttributeValue {
	item := key(userPK(v.UserID), skVerify)
	item["code"] = &types.AttributeValueMemberS{Value: v.Code}
	item["createdAt"] = &types.AttributeValueMemberS{Value: v.CreatedAt.UTC().Format(time.RFC3339)}
	item["expiresAt"] = &types.AttributeValueMemberS{Value: v.ExpiresAt.UTC().Format(time.RFC3339)}
	item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(v.ExpiresAt.Unix(), 10)}
	return item
}

// itemToUser converts a DynamoDB attribute map to a User.
func itemToUser(item map[string]types.AttributeValue) (domain.User, error) {
	var (
		u   domain.User
		err error
	)
	fields := []struct {
		name string
		dst  *string
	}{
		{"userId", &u.ID},
		{"username", &u.Username},
		{"email", &u.Email},
		{"passwordHash", &u.PasswordHash},
		{"status", &u.Status},
	}
	for _, f := range fields {
		if *f.dst, err = strAttr(item, f.name); err != nil {
			return domain.User{}, err
		}
	}
	u.NativeLanguage, _ = strAttr(item, "nativeLang")   // allow empty
	u.RussianLevel, _ = strAttr(item, "russianLevel") // allow empty

	if u.RegisteredAt, err = timeAttr(item, "registeredAt"); err != nil {
		return domain.User{}, err
	}
	if _, ok := item["verifiedAt"]; ok {
		verifiedAt, err := timeAttr(item, "verifiedAt")
		if err != nil {
			return domain.User{}, err
		}
		u.VerifiedAt = &verifiedAt
	}
	return u, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
}
