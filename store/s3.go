package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/maastricht-university/audioscore/audio"
)

// S3Client is the subset of the S3 API the store uses. *s3.Client
// satisfies it.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config describes how to reach an S3 or S3-compatible endpoint.
type S3Config struct {
	Region   string
	Endpoint string
	// PathStyle is needed by MinIO and most self-hosted stores.
	PathStyle bool
	AccessKey string
	SecretKey string
}

// NewS3Client builds an S3 client from static settings. Empty keys fall
// back to AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN.
func NewS3Client(c S3Config) *s3.Client {
	opts := s3.Options{
		Region:       c.Region,
		UsePathStyle: c.PathStyle,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			creds := aws.Credentials{
				AccessKeyID:     c.AccessKey,
				SecretAccessKey: c.SecretKey,
				Source:          "audioscore",
			}
			if creds.AccessKeyID == "" {
				creds.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
				creds.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
				creds.SessionToken = os.Getenv("AWS_SESSION_TOKEN")
			}
			if creds.AccessKeyID == "" {
				return aws.Credentials{}, errors.New("store: no S3 credentials configured")
			}
			return creds, nil
		})),
	}
	if c.Endpoint != "" {
		opts.BaseEndpoint = aws.String(c.Endpoint)
	}
	return s3.New(opts)
}

// ParseS3URI splits s3://bucket/prefix.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 uri without bucket: %q", uri)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// S3Sink uploads reports to a bucket under an optional prefix.
type S3Sink struct {
	client S3Client
	bucket string
	prefix string
}

func NewS3Sink(client S3Client, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Sink) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Put uploads data and returns its s3:// location.
func (s *S3Sink) Put(ctx context.Context, name string, data []byte) (string, error) {
	key := s.key(name)
	contentType := "application/json"
	if strings.HasSuffix(name, ".yaml") {
		contentType = "application/yaml"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// S3Fetcher downloads the audio objects under an s3:// prefix into a local
// directory so they can be resolved like any other directory input.
type S3Fetcher struct {
	client S3Client
	// Dir receives the downloads; empty means a fresh temp directory per
	// fetch, removed by Close.
	Dir string

	mu    sync.Mutex
	temps []string
}

func NewS3Fetcher(client S3Client, dir string) *S3Fetcher {
	return &S3Fetcher{client: client, Dir: dir}
}

// Fetch mirrors the audio objects below uri, keeping their relative paths.
func (f *S3Fetcher) Fetch(ctx context.Context, uri string) (string, error) {
	bucket, prefix, err := ParseS3URI(uri)
	if err != nil {
		return "", err
	}
	if f.Dir != "" {
		if err := f.mirror(ctx, uri, bucket, prefix, f.Dir); err != nil {
			return "", err
		}
		return f.Dir, nil
	}
	dir, err := os.MkdirTemp("", "audioscore-s3-")
	if err != nil {
		return "", err
	}
	if err := f.mirror(ctx, uri, bucket, prefix, dir); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	f.mu.Lock()
	f.temps = append(f.temps, dir)
	f.mu.Unlock()
	return dir, nil
}

// Close removes the temp directories created by earlier fetches.
func (f *S3Fetcher) Close() error {
	f.mu.Lock()
	temps := f.temps
	f.temps = nil
	f.mu.Unlock()

	var errs []error
	for _, dir := range temps {
		errs = append(errs, os.RemoveAll(dir))
	}
	return errors.Join(errs...)
}

func (f *S3Fetcher) mirror(ctx context.Context, uri, bucket, prefix, dir string) error {
	listPrefix := prefix
	if listPrefix != "" {
		listPrefix += "/"
	}

	var token *string
	n := 0
	for {
		out, err := f.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(listPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("s3 list %s: %w", uri, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if !audio.IsAudioFile(key) {
				continue
			}
			rel := strings.TrimPrefix(key, listPrefix)
			if err := f.download(ctx, bucket, key, filepath.Join(dir, filepath.FromSlash(path.Clean("/" + rel)))); err != nil {
				return err
			}
			n++
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	if n == 0 {
		return fmt.Errorf("no audio objects under %s: %w", uri, os.ErrNotExist)
	}
	return nil
}

func (f *S3Fetcher) download(ctx context.Context, bucket, key, dest string) error {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return fmt.Errorf("s3 get %s: %w", key, os.ErrNotExist)
		}
		return fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	file, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, out.Body); err != nil {
		file.Close()
		return fmt.Errorf("s3 get %s: %w", key, err)
	}
	return file.Close()
}

// isS3NotFound reports whether err indicates the S3 object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
