// Package transfer delivers submission packages to target repositories.
//
// The S3 transport writes a manifest object into a drop-box bucket that the
// repository ingests on its own schedule. Package serialization is out of
// scope; the manifest names the submission and its targets.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/pass/deposit-services/internal/infrastructure/config"
	"github.com/pass/deposit-services/internal/infrastructure/logger"
	"github.com/pass/deposit-services/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ManifestContentType is the content type of manifest objects
const ManifestContentType = "application/json"

// Manifest is the object written for one transfer
type Manifest struct {
	SubmissionID  uuid.UUID   `json:"submission_id"`
	RepositoryID  uuid.UUID   `json:"repository_id"`
	RepositoryKey string      `json:"repository_key"`
	Repositories  []uuid.UUID `json:"repositories"`
	SubmittedAt   *time.Time  `json:"submitted_at,omitempty"`
	TransferredAt time.Time   `json:"transferred_at"`
}

// S3Transferer writes manifests to an S3-compatible bucket
type S3Transferer struct {
	client        *s3.Client
	bucket        string
	prefix        string
	statusBaseURL string
	logger        *zap.Logger
	now           func() time.Time
}

// S3TransfererOption configures an S3Transferer
type S3TransfererOption func(*S3Transferer)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) S3TransfererOption {
	return func(t *S3Transferer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock overrides the time source used for object keys
func WithClock(now func() time.Time) S3TransfererOption {
	return func(t *S3Transferer) {
		t.now = now
	}
}

// NewS3Transferer builds a transferer from configuration. Static credentials
// are used when configured, otherwise the default AWS credential chain.
func NewS3Transferer(ctx context.Context, cfg config.TransferConfig, opts ...S3TransfererOption) (*S3Transferer, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("transfer bucket is required")
	}
	if cfg.StatusBaseURL != "" {
		if _, err := url.Parse(cfg.StatusBaseURL); err != nil {
			return nil, fmt.Errorf("invalid transfer status base url: %w", err)
		}
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		// drop-box targets are often MinIO or Ceph gateways without trailing checksum support
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	t := &S3Transferer{
		client:        client,
		bucket:        cfg.Bucket,
		prefix:        strings.Trim(cfg.Prefix, "/"),
		statusBaseURL: strings.TrimRight(cfg.StatusBaseURL, "/"),
		logger:        zap.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Transfer writes the manifest for submission into the repository's drop box
// and returns the status reference of the written object. The reference is
// empty when no status base URL is configured.
func (t *S3Transferer) Transfer(ctx context.Context, submission *deposit.Submission, repository *deposit.Repository) (string, error) {
	if submission == nil || repository == nil {
		return "", ErrIncompleteTransfer
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "transfer", "s3")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrSubmissionID, submission.ID.String(),
		telemetry.SpanAttrRepositoryKey, repository.Key,
	)

	at := t.now().UTC()
	manifest := Manifest{
		SubmissionID:  submission.ID,
		RepositoryID:  repository.ID,
		RepositoryKey: repository.Key,
		Repositories:  submission.Repositories,
		SubmittedAt:   submission.SubmittedAt,
		TransferredAt: at,
	}
	body, err := json.Marshal(manifest)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("encode manifest: %w", err)
	}

	key := t.objectKey(repository.Key, submission.ID, at)
	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(ManifestContentType),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("%w: put s3://%s/%s: %v", ErrTransferFailed, t.bucket, key, err)
	}

	ref := t.statusRef(key)
	telemetry.SetAttribute(span, telemetry.SpanAttrStatusRef, ref)
	telemetry.SetOK(span)

	logger.FromContextOr(ctx, t.logger).Info("Submission transferred",
		zap.String("submission_id", submission.ID.String()),
		zap.String("repository_key", repository.Key),
		zap.String("bucket", t.bucket),
		zap.String("object_key", key),
	)
	return ref, nil
}

// Bucket returns the drop-box bucket name
func (t *S3Transferer) Bucket() string {
	return t.bucket
}

func (t *S3Transferer) objectKey(repositoryKey string, submissionID uuid.UUID, at time.Time) string {
	name := fmt.Sprintf("%s.json", at.Format("20060102T150405.000000000Z"))
	return path.Join(t.prefix, repositoryKey, submissionID.String(), name)
}

func (t *S3Transferer) statusRef(key string) string {
	if t.statusBaseURL == "" {
		return ""
	}
	return t.statusBaseURL + "/" + key
}

var _ deposit.Transferer = (*S3Transferer)(nil)
