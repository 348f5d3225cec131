// Package s3test provides an in-memory S3 bucket for tests.
package s3test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var errMultipart = errors.New("multipart upload is not supported by the fake")

// FakeClient stores the objects of a single bucket. Deleting an absent key
// succeeds, as it does on S3.
type FakeClient struct {
	mu sync.Mutex

	Bucket  string
	Objects map[string][]byte
	// PageSize caps ListObjectsV2 pages below the requested MaxKeys.
	PageSize int
	// FailKeys makes DeleteObjects report these keys as failed with the
	// mapped error code.
	FailKeys map[string]string
	// Err, when set, is returned by every call.
	Err error

	DeleteObjectsCalls int
	DeleteObjectCalls  int
	PutObjectCalls     int
}

func NewFakeClient(bucket string) *FakeClient {
	return &FakeClient{Bucket: bucket, Objects: make(map[string][]byte)}
}

func (f *FakeClient) Put(key string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Objects[key] = body
}

func (f *FakeClient) Get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.Objects[key]
	return body, ok
}

func (f *FakeClient) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Objects)
}

func (f *FakeClient) check(bucket *string) error {
	if f.Err != nil {
		return f.Err
	}
	if aws.ToString(bucket) != f.Bucket {
		return &types.NoSuchBucket{Message: aws.String("The specified bucket does not exist")}
	}
	return nil
}

func (f *FakeClient) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(params.Bucket); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(f.Objects))
	for key := range f.Objects {
		if key > aws.ToString(params.ContinuationToken) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	limit := int(aws.ToInt32(params.MaxKeys))
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	if f.PageSize > 0 && f.PageSize < limit {
		limit = f.PageSize
	}

	output := &s3.ListObjectsV2Output{Name: params.Bucket, IsTruncated: aws.Bool(false)}
	if len(keys) > limit {
		keys = keys[:limit]
		output.IsTruncated = aws.Bool(true)
		output.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, key := range keys {
		output.Contents = append(output.Contents, types.Object{Key: aws.String(key), Size: aws.Int64(int64(len(f.Objects[key])))})
	}
	output.KeyCount = aws.Int32(int32(len(output.Contents)))
	return output, nil
}

func (f *FakeClient) DeleteObjects(_ context.Context, params *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(params.Bucket); err != nil {
		return nil, err
	}
	f.DeleteObjectsCalls++

	output := &s3.DeleteObjectsOutput{}
	for _, identifier := range params.Delete.Objects {
		key := aws.ToString(identifier.Key)
		if code, failed := f.FailKeys[key]; failed {
			output.Errors = append(output.Errors, types.Error{Key: aws.String(key), Code: aws.String(code), Message: aws.String(code)})
			continue
		}
		delete(f.Objects, key)
		if !aws.ToBool(params.Delete.Quiet) {
			output.Deleted = append(output.Deleted, types.DeletedObject{Key: aws.String(key)})
		}
	}
	return output, nil
}

func (f *FakeClient) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(params.Bucket); err != nil {
		return nil, err
	}
	f.DeleteObjectCalls++
	delete(f.Objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *FakeClient) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(params.Bucket); err != nil {
		return nil, err
	}
	f.PutObjectCalls++
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.Objects[aws.ToString(params.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *FakeClient) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipart
}

func (f *FakeClient) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *FakeClient) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *FakeClient) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errMultipart
}
