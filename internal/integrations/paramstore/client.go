package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"neox-site/internal/domain"
)

// ErrParameterNotFound is returned by GetParameter when SSM has no such name.
var ErrParameterNotFound = errors.New("paramstore: parameter not found")

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Client wraps an AWS SSM API for parameter retrieval.
type Client struct {
	api    ssmAPI
	prefix string
}

// New creates a Client reading site settings under prefix, e.g. "/neox-site".
func New(api ssmAPI, prefix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("paramstore: parameter prefix must not be empty")
	}
	return &Client{api: api, prefix: prefix}, nil
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("paramstore: get parameter %q: %w", name, ErrParameterNotFound)
		}
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// LoadSiteSettings overlays <prefix>/config/{debug,edge_ttl,browser_ttl}
// onto defaults. Parameters that do not exist keep the default value.
// TTLs are Go durations ("48h") or whole seconds ("172800").
func (c *Client) LoadSiteSettings(ctx context.Context, defaults domain.SiteSettings) (domain.SiteSettings, error) {
	out := defaults

	raw, ok, err := c.optional(ctx, "debug")
	if err != nil {
		return domain.SiteSettings{}, err
	}
	if ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.SiteSettings{}, fmt.Errorf("paramstore: parse debug: %w", err)
		}
		out.Debug = v
	}

	raw, ok, err = c.optional(ctx, "edge_ttl")
	if err != nil {
		return domain.SiteSettings{}, err
	}
	if ok {
		d, err := ParseTTL(raw)
		if err != nil {
			return domain.SiteSettings{}, fmt.Errorf("paramstore: parse edge_ttl: %w", err)
		}
		out.Cache.EdgeTTL = d
	}

	raw, ok, err = c.optional(ctx, "browser_ttl")
	if err != nil {
		return domain.SiteSettings{}, err
	}
	if ok {
		d, err := ParseTTL(raw)
		if err != nil {
			return domain.SiteSettings{}, fmt.Errorf("paramstore: parse browser_ttl: %w", err)
		}
		out.Cache.BrowserTTL = &d
	}
	return out, nil
}

func (c *Client) optional(ctx context.Context, name string) (string, bool, error) {
	v, err := c.GetParameter(ctx, c.prefix+"/config/"+name)
	if errors.Is(err, ErrParameterNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(v), true, nil
}

// ParseTTL accepts a Go duration or a non-negative number of seconds.
func ParseTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative ttl %d", n)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative ttl %s", d)
	}
	return d, nil
}
