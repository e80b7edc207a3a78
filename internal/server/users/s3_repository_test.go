package users

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/logging"
)

// fakeS3 is an in-memory bucket honoring If-None-Match: * and If-Match.
// Objects seeded directly into objects have a zero modification time.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	putErr   map[string]error
	pageLen  int32
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:  map[string][]byte{},
		modified: map[string]time.Time{},
		putErr:   map[string]error{},
		pageLen:  2,
	}
}

func fakeETag(b []byte) string {
	sum := md5.Sum(b)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := aws.ToString(in.Key)
	for prefix, err := range f.putErr {
		if strings.HasPrefix(key, prefix) {
			return nil, err
		}
	}
	preconditionFailed := &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	current, exists := f.objects[key]
	if aws.ToString(in.IfNoneMatch) == "*" && exists {
		return nil, preconditionFailed
	}
	if in.IfMatch != nil && (!exists || fakeETag(current) != aws.ToString(in.IfMatch)) {
		return nil, preconditionFailed
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = b
	f.modified[key] = time.Now()
	return &s3.PutObjectOutput{ETag: aws.String(fakeETag(b))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := aws.ToString(in.Key)
	b, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{
		Body:         io.NopCloser(bytes.NewReader(b)),
		ETag:         aws.String(fakeETag(b)),
		LastModified: aws.Time(f.modified[key]),
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	if int32(len(keys)) > f.pageLen {
		keys = keys[:f.pageLen]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	out.KeyCount = aws.Int32(int32(len(keys)))
	return out, nil
}

func (f *fakeS3) keys(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func newS3Repo(t *testing.T) (*S3Repository, *fakeS3) {
	t.Helper()
	f := newFakeS3()
	return NewS3Repository(f, "bucket", "users/", logging.Nop()), f
}

func TestS3Repository_CreateAndLookup(t *testing.T) {
	repo, f := newS3Repo(t)
	ctx := context.Background()

	u := localUser("u1", "a@x.com", "1111111111")
	require.NoError(t, repo.Create(ctx, u))

	assert.Equal(t, []string{
		"users/emails/a@x.com",
		"users/mobiles/1111111111",
		"users/records/u1.json",
	}, f.keys("users/"))

	got, err := repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)

	got, err = repo.GetByMobile(ctx, "1111111111")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	_, err = repo.GetByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestS3Repository_Uniqueness(t *testing.T) {
	repo, f := newS3Repo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, localUser("u1", "a@x.com", "1111111111")))

	err := repo.Create(ctx, localUser("u2", "a@x.com", "2222222222"))
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	err = repo.Create(ctx, localUser("u3", "c@x.com", "1111111111"))
	assert.ErrorIs(t, err, ErrDuplicateMobile)

	// the email claimed by the failed attempt was released
	assert.NotContains(t, f.keys("users/emails/"), "users/emails/c@x.com")
	require.NoError(t, repo.Create(ctx, localUser("u4", "c@x.com", "4444444444")))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestS3Repository_ConcurrentCreateSameEmail(t *testing.T) {
	repo, _ := newS3Repo(t)
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		dups int
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, localUser(string(rune('a'+i)), "same@x.com", strings.Repeat(string(rune('0'+i)), 10)))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				oks++
			} else if errors.Is(err, ErrDuplicateEmail) {
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, oks)
	assert.Equal(t, 7, dups)
}

func TestS3Repository_RecordWriteFailureReleasesClaims(t *testing.T) {
	repo, f := newS3Repo(t)
	f.putErr["users/records/"] = errors.New("disk full")

	err := repo.Create(context.Background(), localUser("u1", "a@x.com", "1111111111"))
	assert.ErrorIs(t, err, ErrStorage)
	assert.Empty(t, f.keys("users/"))
}

func TestS3Repository_AllPaginatesAndSkipsMalformed(t *testing.T) {
	repo, f := newS3Repo(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		u := localUser(id, id+"@x.com", strings.Repeat(string(rune('1'+i)), 10))
		u.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, u))
	}
	f.objects["users/records/broken.json"] = []byte("{not json")
	f.objects["users/records/readme.txt"] = []byte("ignored")

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{all[0].ID, all[1].ID, all[2].ID}, "ordered by creation time")
	assert.EqualValues(t, 1, repo.SkippedRecords())
}

func TestS3Repository_ClaimWithoutRecord(t *testing.T) {
	repo, f := newS3Repo(t)
	f.objects["users/emails/ghost@x.com"] = []byte("missing-id")

	_, err := repo.GetByEmail(context.Background(), "ghost@x.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestS3Repository_CreateTakesOverStaleClaims(t *testing.T) {
	repo, f := newS3Repo(t)
	ctx := context.Background()
	f.objects["users/emails/ghost@x.com"] = []byte("missing-id")
	f.objects["users/mobiles/5555555555"] = []byte("missing-id")

	require.NoError(t, repo.Create(ctx, localUser("u1", "ghost@x.com", "5555555555")))

	got, err := repo.GetByEmail(ctx, "ghost@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	got, err = repo.GetByMobile(ctx, "5555555555")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
}

func TestS3Repository_CreateKeepsFreshOrOwnedClaims(t *testing.T) {
	repo, f := newS3Repo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, localUser("u1", "a@x.com", "1111111111")))
	later := func() time.Time { return time.Now().Add(2 * staleClaimAge) }
	repo.now = later
	err := repo.Create(ctx, localUser("u2", "a@x.com", "2222222222"))
	assert.ErrorIs(t, err, ErrDuplicateEmail, "an old claim with a record stays owned")
	repo.now = time.Now

	// a claim written moments ago by a Create that has not stored its record yet
	f.mu.Lock()
	f.objects["users/emails/busy@x.com"] = []byte("in-flight")
	f.modified["users/emails/busy@x.com"] = time.Now()
	f.mu.Unlock()

	err = repo.Create(ctx, localUser("u3", "busy@x.com", "3333333333"))
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.Empty(t, f.keys("users/mobiles/3333333333"), "nothing else is claimed")

	repo.now = later
	require.NoError(t, repo.Create(ctx, localUser("u3", "busy@x.com", "3333333333")))
}

func TestS3Repository_ErrorClassification(t *testing.T) {
	assert.True(t, isPreconditionFailed(&smithy.GenericAPIError{Code: "PreconditionFailed"}))
	assert.True(t, isPreconditionFailed(&smithy.GenericAPIError{Code: "ConditionalRequestConflict"}))
	assert.False(t, isPreconditionFailed(errors.New("PreconditionFailed")))

	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
}
