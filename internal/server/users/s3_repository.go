package users

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/logging"
)

// S3API is the subset of *s3.Client used by S3Repository.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// NewS3Client builds an S3 client for an S3-compatible endpoint (MinIO in
// development) with static credentials.
func NewS3Client(ctx context.Context, region, endpoint, accessKey, secretKey string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	}), nil
}

// S3Repository keeps one object per user under "<prefix>records/<id>.json".
// Uniqueness is claimed with conditional writes (If-None-Match: *) of
// marker objects "<prefix>emails/<email>" and "<prefix>mobiles/<mobile>",
// which hold the owning user id.
type S3Repository struct {
	client S3API
	bucket string
	prefix string
	logger logging.Logger
	now    func() time.Time

	skipped atomic.Int64
}

// staleClaimAge is how long a marker without a record is treated as an
// in-flight Create before another Create may take it over.
const staleClaimAge = time.Minute

var _ Repository = (*S3Repository)(nil)

func NewS3Repository(client S3API, bucket, prefix string, logger logging.Logger) *S3Repository {
	return &S3Repository{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With("bucket", bucket, "prefix", prefix),
		now:    time.Now,
	}
}

func (r *S3Repository) SkippedRecords() int64 { return r.skipped.Load() }

func (r *S3Repository) recordKey(id string) string { return r.prefix + "records/" + id + ".json" }

func (r *S3Repository) emailKey(email string) string {
	return r.prefix + "emails/" + url.PathEscape(email)
}

func (r *S3Repository) mobileKey(mobile string) string {
	return r.prefix + "mobiles/" + url.PathEscape(mobile)
}

func (r *S3Repository) Create(ctx context.Context, u *User) error {
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	emailKey := r.emailKey(u.Email)
	taken, err := r.claim(ctx, emailKey, u.ID)
	if err != nil {
		return storageError("claim email", err)
	}
	if taken {
		return ErrDuplicateEmail
	}

	claimed := []string{emailKey}
	release := func() {
		for _, k := range claimed {
			if _, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(r.bucket),
				Key:    aws.String(k),
			}); err != nil {
				r.logger.Error(ctx, "failed to release claim", "key", k, "error", err)
			}
		}
	}

	if u.Mobile != "" {
		mobileKey := r.mobileKey(u.Mobile)
		taken, err := r.claim(ctx, mobileKey, u.ID)
		if err != nil {
			release()
			return storageError("claim mobile", err)
		}
		if taken {
			release()
			return ErrDuplicateMobile
		}
		claimed = append(claimed, mobileKey)
	}

	if err := r.putIfAbsent(ctx, r.recordKey(u.ID), body); err != nil {
		release()
		return storageError("put record", err)
	}
	return nil
}

// claim writes the marker key for id. taken reports that another user owns
// it. A marker whose record never appeared is replaced once it is older
// than staleClaimAge, guarded by If-Match on the marker's ETag.
func (r *S3Repository) claim(ctx context.Context, key, id string) (taken bool, err error) {
	err = r.putIfAbsent(ctx, key, []byte(id))
	if err == nil {
		return false, nil
	}
	if !isPreconditionFailed(err) {
		return false, err
	}

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		// released between the two calls
		err = r.putIfAbsent(ctx, key, []byte(id))
		if isPreconditionFailed(err) {
			return true, nil
		}
		return false, err
	}
	if err != nil {
		return false, err
	}
	owner, err := io.ReadAll(out.Body)
	_ = out.Body.Close()
	if err != nil {
		return false, err
	}

	if out.ETag == nil || r.now().Sub(aws.ToTime(out.LastModified)) < staleClaimAge {
		return true, nil
	}
	ownerID := strings.TrimSpace(string(owner))
	if _, err := r.get(ctx, r.recordKey(ownerID)); err == nil {
		return true, nil
	} else if !isNotFound(err) {
		return false, err
	}

	r.logger.Warn(ctx, "replacing stale claim", "key", key, "owner", ownerID)
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(id)),
		ContentType: aws.String("application/json"),
		IfMatch:     out.ETag,
	})
	if isPreconditionFailed(err) {
		return true, nil
	}
	return false, err
}

func (r *S3Repository) putIfAbsent(ctx context.Context, key string, body []byte) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	return err
}

func (r *S3Repository) All(ctx context.Context) ([]*User, error) {
	keys, err := r.listRecordKeys(ctx)
	if err != nil {
		return nil, err
	}

	var (
		users   []*User
		skipped int64
	)
	for _, k := range keys {
		b, err := r.get(ctx, k)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, storageError("get record", err)
		}
		u, err := decodeRecord(bytes.TrimSpace(b))
		if err != nil {
			skipped++
			r.logger.Warn(ctx, "skipping malformed user record", "key", k, "error", err)
			continue
		}
		users = append(users, u)
	}
	r.skipped.Store(skipped)

	sort.SliceStable(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (r *S3Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getByClaim(ctx, r.emailKey(email))
}

func (r *S3Repository) GetByMobile(ctx context.Context, mobile string) (*User, error) {
	if mobile == "" {
		return nil, common.ErrorNotFound
	}
	return r.getByClaim(ctx, r.mobileKey(mobile))
}

// Count lists record keys without fetching them.
func (r *S3Repository) Count(ctx context.Context) (int, error) {
	keys, err := r.listRecordKeys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// getByClaim resolves a claim marker to its record. A marker whose record
// is missing (a crash between the two writes) reads as not found.
func (r *S3Repository) getByClaim(ctx context.Context, claimKey string) (*User, error) {
	id, err := r.get(ctx, claimKey)
	if err != nil {
		if isNotFound(err) {
			return nil, common.ErrorNotFound
		}
		return nil, storageError("get claim", err)
	}

	b, err := r.get(ctx, r.recordKey(strings.TrimSpace(string(id))))
	if err != nil {
		if isNotFound(err) {
			r.logger.Warn(ctx, "claim without record", "key", claimKey)
			return nil, common.ErrorNotFound
		}
		return nil, storageError("get record", err)
	}

	u, err := decodeRecord(bytes.TrimSpace(b))
	if err != nil {
		return nil, storageError("decode record", err)
	}
	return u, nil
}

func (r *S3Repository) get(ctx context.Context, key string) ([]byte, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (r *S3Repository) listRecordKeys(ctx context.Context) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(r.prefix + "records/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, storageError("list records", err)
		}
		for _, obj := range page.Contents {
			if k := aws.ToString(obj.Key); strings.HasSuffix(k, ".json") {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
