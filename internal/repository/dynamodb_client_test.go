package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"text-adapter/internal/domain"
)

type fakeDynamo struct {
	getOuts      map[string]*dynamodb.GetItemOutput // keyed by PK
	getErr       error
	putErr       error
	updateErr    error
	txErr        error
	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
	lastUpdateIn *dynamodb.UpdateItemInput
	lastTxInput  *dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	if f.getErr != nil {
		return nil, f.getErr
	}
	pk := in.Key["PK"].(*types.AttributeValueMemberS).Value
	if out, ok := f.getOuts[pk]; ok {
		return out, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdateIn = in
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTxInput = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	return c
}

func sampleUser() domain.User {
	return domain.User{
		ID:             "u-1",
		Username:       "Ivan",
		Email:          "Ivan@Example.com",
		PasswordHash:   "$2a$hash",
		NativeLanguage: "en",
		RussianLevel:   "B1",
		Status:         domain.UserStatusUnverified,
		RegisteredAt:   time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func pkOf(item map[string]types.AttributeValue) string {
	return item["PK"].(*types.AttributeValueMemberS).Value
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, "t")
	require.Error(t, err)
	_, err = New(&fakeDynamo{}, " ")
	require.Error(t, err)
}

func TestCreateUser_WritesProfileAndLocks(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	require.NoError(t, c.CreateUser(context.Background(), sampleUser()))
	require.NotNil(t, db.lastTxInput)
	items := db.lastTxInput.TransactItems
	require.Len(t, items, 3)
	require.Equal(t, "USER#u-1", pkOf(items[0].Put.Item))
	require.Equal(t, "USERNAME#ivan", pkOf(items[1].Put.Item))
	require.Equal(t, "EMAIL#ivan@example.com", pkOf(items[2].Put.Item))
	for _, it := range items {
		require.Equal(t, "attribute_not_exists(PK)", aws.ToString(it.Put.ConditionExpression))
		require.Equal(t, "test-table", aws.ToString(it.Put.TableName))
	}
}

func TestCreateUser_Conflict(t *testing.T) {
	db := &fakeDynamo{txErr: &types.TransactionCanceledException{
		Message: aws.String("Transaction cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
			{Code: aws.String("None")},
		},
	}}
	c := mustNewClient(t, db)

	err := c.CreateUser(context.Background(), sampleUser())
	require.ErrorIs(t, err, ErrConflict)
}

func TestCreateUser_CanceledWithoutConditionFailure(t *testing.T) {
	cases := map[string][]types.CancellationReason{
		"throttled": {
			{Code: aws.String("ThrottlingError")},
			{Code: aws.String("None")},
			{Code: aws.String("None")},
		},
		"transaction conflict": {
			{Code: aws.String("TransactionConflict")},
			{Code: aws.String("None")},
			{Code: aws.String("None")},
		},
		"no reasons": nil,
	}
	for name, reasons := range cases {
		t.Run(name, func(t *testing.T) {
			db := &fakeDynamo{txErr: &types.TransactionCanceledException{
				Message:             aws.String("Transaction cancelled"),
				CancellationReasons: reasons,
			}}
			c := mustNewClient(t, db)

			err := c.CreateUser(context.Background(), sampleUser())
			require.Error(t, err)
			require.NotErrorIs(t, err, ErrConflict)
			var canceled *types.TransactionCanceledException
			require.ErrorAs(t, err, &canceled)
		})
	}
}

func TestCreateUser_OtherError(t *testing.T) {
	db := &fakeDynamo{txErr: errors.New("throttled")}
	c := mustNewClient(t, db)

	err := c.CreateUser(context.Background(), sampleUser())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrConflict)
	require.Contains(t, err.Error(), "throttled")
}

func TestCreateUser_RequiresID(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	u := sampleUser()
	u.ID = ""
	require.Error(t, c.CreateUser(context.Background(), u))
}

func TestGetUser_RoundTrip(t *testing.T) {
	u := sampleUser()
	verified := time.Date(2026, 10, 1, 12, 1, 0, 0, time.UTC)
	u.VerifiedAt = &verified
	db := &fakeDynamo{getOuts: map[string]*dynamodb.GetItemOutput{
		"USER#u-1": {Item: userItem(u)},
	}}
	c := mustNewClient(t, db)

	got, err := c.GetUser(context.Background(), "u-1")
	require.NoError(t, err)
	require.Equal(t, u, got)
	require.True(t, aws.ToBool(db.lastGetInput.ConsistentRead))
}

func TestGetUser_NotFound(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	_, err := c.GetUser(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetUser_MalformedItem(t *testing.T) {
	item := userItem(sampleUser())
	item["registeredAt"] = &types.AttributeValueMemberS{Value: "yesterday"}
	db := &fakeDynamo{getOuts: map[string]*dynamodb.GetItemOutput{"USER#u-1": {Item: item}}}
	c := mustNewClient(t, db)

	_, err := c.GetUser(context.Background(), "u-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "registeredAt")
}

func TestFindUserIDByLogin(t *testing.T) {
	lock := func(id string) *dynamodb.GetItemOutput {
		return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: id},
		}}
	}
	db := &fakeDynamo{getOuts: map[string]*dynamodb.GetItemOutput{
		"USERNAME#ivan":           lock("u-1"),
		"EMAIL#maria@example.com": lock("u-2"),
	}}
	c := mustNewClient(t, db)

	id, err := c.FindUserIDByLogin(context.Background(), "IVAN")
	require.NoError(t, err)
	require.Equal(t, "u-1", id)

	id, err = c.FindUserIDByLogin(context.Background(), "maria@example.com")
	require.NoError(t, err)
	require.Equal(t, "u-2", id)

	_, err = c.FindUserIDByLogin(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindUserIDByLogin_GetItemError(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{getErr: errors.New("boom")})
	_, err := c.FindUserIDByLogin(context.Background(), "ivan")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestActivateUser_UpdatesAndConsumesCode(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	at := time.Date(2026, 10, 1, 12, 1, 0, 0, time.UTC)
	require.NoError(t, c.ActivateUser(context.Background(), "u-1", at))
	items := db.lastTxInput.TransactItems
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Update)
	status := items[0].Update.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS)
	require.Equal(t, domain.UserStatusActive, status.Value)
	require.NotNil(t, items[1].Delete)
	require.Equal(t, skVerify, items[1].Delete.Key["SK"].(*types.AttributeValueMemberS).Value)
}

func TestUpdatePasswordHash(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.UpdatePasswordHash(context.Background(), "u-1", "$2a$new"))
	require.Equal(t, "$2a$new", db.lastUpdateIn.ExpressionAttributeValues[":hash"].(*types.AttributeValueMemberS).Value)

	db.updateErr = &types.ConditionalCheckFailedException{Message: aws.String("missing")}
	err := c.UpdatePasswordHash(context.Background(), "u-1", "$2a$new")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVerificationCode_PutAndGet(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	code := domain.VerificationCode{
		UserID:    "u-1",
		Code:      "123456",
		CreatedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		ExpiresAt: time.Date(2026, 10, 1, 12, 2, 0, 0, time.UTC),
	}
	require.NoError(t, c.PutVerificationCode(context.Background(), code))
	ttl := db.lastPutInput.Item["ttl"].(*types.AttributeValueMemberN)
	require.Equal(t, "1790856120", ttl.Value)

	db.getOuts = map[string]*dynamodb.GetItemOutput{"USER#u-1": {Item: db.lastPutInput.Item}}
	got, err := c.GetVerificationCode(context.Background(), "u-1")
	require.NoError(t, err)
	require.Equal(t, code, got)
}

func TestPutVerificationCode_Validates(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	require.Error(t, c.PutVerificationCode(context.Background(), domain.VerificationCode{UserID: "u-1"}))
}

func TestGetVerificationCode_NotFound(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	_, err := c.GetVerificationCode(context.Background(), "u-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteUser_RemovesEverything(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	require.NoError(t, c.DeleteUser(context.Background(), sampleUser()))
	items := db.lastTxInput.TransactItems
	require.Len(t, items, 4)
	for _, it := range items {
		require.NotNil(t, it.Delete)
	}

	db.txErr = errors.New("boom")
	require.Error(t, c.DeleteUser(context.Background(), sampleUser()))
}
