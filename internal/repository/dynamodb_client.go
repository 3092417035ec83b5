package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"neox-site/internal/domain"
)

const pkPrefixAsset = "ASSET#"

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client wraps a DynamoDB table used as the key-value asset store.
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

// assetPK returns the partition key for an asset key such as "/css/site.css".
func assetPK(key string) string {
	return pkPrefixAsset + key
}

// GetAsset fetches the asset stored under key. A missing item yields
// domain.ErrAssetNotFound; any other failure is wrapped.
func (c *Client) GetAsset(ctx context.Context, key string) (domain.Asset, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: assetPK(key)},
		},
	})
	if err != nil {
		return domain.Asset{}, fmt.Errorf("repository: GetAsset %q: %w", key, err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Asset{}, fmt.Errorf("could not find %s in asset store: %w", key, domain.ErrAssetNotFound)
	}

	asset, err := itemToAsset(out.Item)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("repository: GetAsset %q unmarshal: %w", key, err)
	}
	asset.Key = key
	return asset, nil
}

// PutAsset writes or replaces an asset. ETag and UpdatedAt are filled in
// when empty.
func (c *Client) PutAsset(ctx context.Context, asset domain.Asset) error {
	if !strings.HasPrefix(asset.Key, "/") {
		return errors.New("repository: PutAsset: key must start with /")
	}
	if asset.ETag == "" {
		asset.ETag = ContentETag(asset.Body)
	}
	if asset.UpdatedAt.IsZero() {
		asset.UpdatedAt = time.Now().UTC()
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      assetItem(asset),
	})
	if err != nil {
		return fmt.Errorf("repository: PutAsset %q: %w", asset.Key, err)
	}
	return nil
}

// ContentETag returns a strong ETag for body.
func ContentETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func assetItem(a domain.Asset) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: assetPK(a.Key)},
		"body":      &types.AttributeValueMemberB{Value: a.Body},
		"etag":      &types.AttributeValueMemberS{Value: a.ETag},
		"updatedAt": &types.AttributeValueMemberS{Value: a.UpdatedAt.UTC().Format(time.RFC3339)},
	}
	if a.ContentType != "" {
		item["contentType"] = &types.AttributeValueMemberS{Value: a.ContentType}
	}
	return item
}

// itemToAsset converts a DynamoDB attribute map to an Asset.
func itemToAsset(item map[string]types.AttributeValue) (domain.Asset, error) {
	body, err := binaryAttr(item, "body")
	if err != nil {
		return domain.Asset{}, err
	}
	contentType, _ := strAttr(item, "contentType") // allow empty
	etag, _ := strAttr(item, "etag")               // allow empty

	var updatedAt time.Time
	if raw, err := strAttr(item, "updatedAt"); err == nil {
		updatedAt, _ = time.Parse(time.RFC3339, raw)
	}

	return domain.Asset{
		Body:        body,
		ContentType: contentType,
		ETag:        etag,
		UpdatedAt:   updatedAt,
	}, nil
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

// binaryAttr accepts B, or S for text assets written by hand.
func binaryAttr(item map[string]types.AttributeValue, key string) ([]byte, error) {
	v, ok := item[key]
	if !ok {
		return nil, fmt.Errorf("repository: missing attribute %q", key)
	}
	switch b := v.(type) {
	case *types.AttributeValueMemberB:
		return b.Value, nil
	case *types.AttributeValueMemberS:
		return []byte(b.Value), nil
	default:
		return nil, fmt.Errorf("repository: attribute %q is not binary", key)
	}
}
