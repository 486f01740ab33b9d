package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectInfo summarises the metadata of a stored object.
type ObjectInfo struct {
	Key          string
	SizeBytes    int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Gateway issues presigned URLs and performs object operations against a
// single S3-compatible bucket. It holds two presign clients, one per
// endpoint: presigned URLs embed the host they were signed for, so a URL
// intended for a browser must be generated against the public endpoint.
//
// The gateway never retries; callers decide whether a failure is fatal.
type Gateway struct {
	cfg            Config
	client         *s3.Client
	presign        *s3.PresignClient
	presignPublic  *s3.PresignClient
	publicBase     *url.URL
	internalScheme string
}

// New constructs a Gateway from the provided configuration. It performs no
// network calls; use EnsureBucket or Healthy to verify connectivity.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	internalURL, err := cfg.endpointURL(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	publicURL, err := cfg.endpointURL(cfg.PublicEndpoint)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load object storage config: %w", err)
	}

	clientFor := func(endpoint *url.URL) *s3.Client {
		return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint.String())
			o.UsePathStyle = true
		})
	}

	internalClient := clientFor(internalURL)
	gateway := &Gateway{
		cfg:            cfg,
		client:         internalClient,
		presign:        s3.NewPresignClient(internalClient),
		presignPublic:  s3.NewPresignClient(clientFor(publicURL)),
		publicBase:     canonicalBase(publicURL),
		internalScheme: internalURL.Scheme,
	}
	return gateway, nil
}

// Bucket returns the configured bucket name.
func (g *Gateway) Bucket() string {
	return g.cfg.Bucket
}

// DefaultExpiry returns the configured presigned URL lifetime.
func (g *Gateway) DefaultExpiry() time.Duration {
	return g.cfg.PresignExpiry
}

// Endpoint returns the internal endpoint the gateway talks to, for
// diagnostics.
func (g *Gateway) Endpoint() string {
	return g.cfg.Endpoint
}

// PresignUpload generates a time-limited single-object PUT URL. The audience
// decides which endpoint the URL is signed against.
func (g *Gateway) PresignUpload(ctx context.Context, objectName, contentType string, expiry time.Duration, audience Audience) (string, error) {
	if expiry <= 0 {
		expiry = g.cfg.PresignExpiry
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(g.cfg.Bucket),
		Key:    aws.String(objectName),
	}
	if strings.TrimSpace(contentType) != "" {
		input.ContentType = aws.String(contentType)
	}
	request, err := g.presignClient(audience).PresignPutObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", opError("presign upload", objectName, err)
	}
	return request.URL, nil
}

// PresignDownload generates a time-limited GET URL for an object.
func (g *Gateway) PresignDownload(ctx context.Context, objectName string, expiry time.Duration, audience Audience) (string, error) {
	if expiry <= 0 {
		expiry = g.cfg.PresignExpiry
	}
	request, err := g.presignClient(audience).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.cfg.Bucket),
		Key:    aws.String(objectName),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", opError("presign download", objectName, err)
	}
	return request.URL, nil
}

func (g *Gateway) presignClient(audience Audience) *s3.PresignClient {
	if audience == AudiencePublic {
		return g.presignPublic
	}
	return g.presign
}

// PublicURL returns the deterministic, non-expiring URL of an object under
// the assumption that its prefix is configured for public read. Default ports
// are omitted so the URL is canonical.
func (g *Gateway) PublicURL(objectName string) string {
	u := *g.publicBase
	u.Path = "/" + g.cfg.Bucket + "/" + strings.TrimLeft(objectName, "/")
	return u.String()
}

// Put stores an object through the internal endpoint.
func (g *Gateway) Put(ctx context.Context, objectName, contentType string, body io.Reader) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(g.cfg.Bucket),
		Key:    aws.String(objectName),
		Body:   body,
	}
	if strings.TrimSpace(contentType) != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := g.client.PutObject(ctx, input); err != nil {
		return opError("put", objectName, err)
	}
	return nil
}

// Delete removes an object. Deleting a missing key is not an error on
// S3-compatible stores, and the gateway preserves that behaviour.
func (g *Gateway) Delete(ctx context.Context, objectName string) error {
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.cfg.Bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		return opError("delete", objectName, err)
	}
	return nil
}

// Stat fetches object metadata, returning ErrObjectNotFound when the key does
// not exist. The orchestrator uses this to confirm an upload landed before
// submitting it for transcoding.
func (g *Gateway) Stat(ctx context.Context, objectName string) (ObjectInfo, error) {
	head, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(g.cfg.Bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, opError("stat", objectName, ErrObjectNotFound)
		}
		return ObjectInfo{}, opError("stat", objectName, err)
	}
	info := ObjectInfo{
		Key:         objectName,
		SizeBytes:   aws.ToInt64(head.ContentLength),
		ContentType: aws.ToString(head.ContentType),
		ETag:        strings.Trim(aws.ToString(head.ETag), `"`),
	}
	if head.LastModified != nil {
		info.LastModified = *head.LastModified
	}
	return info, nil
}

// List walks object names under a prefix, invoking fn for each. Iteration is
// lazy via the paginator but not restartable: a fresh call re-lists from the
// start. Returning an error from fn stops the walk.
func (g *Gateway) List(ctx context.Context, prefix string, fn func(name string) error) error {
	paginator := s3.NewListObjectsV2Paginator(g.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.cfg.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return opError("list", prefix, err)
		}
		for _, object := range page.Contents {
			if err := fn(aws.ToString(object.Key)); err != nil {
				return err
			}
		}
	}
	return nil
}

// EnsureBucket makes sure the bucket exists. When the bucket is created by
// this call, a read policy scoped to the configured public prefix is applied;
// an existing bucket's policy is left untouched so operators keep control.
func (g *Gateway) EnsureBucket(ctx context.Context) error {
	_, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(g.cfg.Bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return opError("head bucket", g.cfg.Bucket, err)
	}

	create := &s3.CreateBucketInput{Bucket: aws.String(g.cfg.Bucket)}
	if g.cfg.Region != "" && g.cfg.Region != "us-east-1" {
		create.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(g.cfg.Region),
		}
	}
	if _, err := g.client.CreateBucket(ctx, create); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return opError("create bucket", g.cfg.Bucket, err)
	}

	policy := publicReadPolicy(g.cfg.Bucket, g.cfg.PublicPrefix)
	if _, err := g.client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(g.cfg.Bucket),
		Policy: aws.String(policy),
	}); err != nil {
		return opError("put bucket policy", g.cfg.Bucket, err)
	}
	return nil
}

// Healthy probes connectivity to the storage backend. The returned error
// names the endpoint so startup diagnostics are actionable.
func (g *Gateway) Healthy(ctx context.Context) error {
	_, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(g.cfg.Bucket)})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("object storage unreachable at %s: %w", g.cfg.Endpoint, err)
	}
	return nil
}

// publicReadPolicy grants anonymous GetObject on the public prefix only,
// never the whole bucket.
func publicReadPolicy(bucket, prefix string) string {
	resource := fmt.Sprintf("arn:aws:s3:::%s/%s/*", bucket, prefix)
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":[%q]}]}`, resource)
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket)
}

// canonicalBase strips default ports so derived URLs are canonical.
func canonicalBase(endpoint *url.URL) *url.URL {
	u := *endpoint
	host := u.Hostname()
	port := u.Port()
	switch {
	case port == "80" && u.Scheme == "http", port == "443" && u.Scheme == "https":
		u.Host = host
	}
	return &u
}
