package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/akarpov91/chainanchor/internal/common"
	sc "github.com/akarpov91/chainanchor/internal/server/config"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
		return c.GetObject(ctx, in, optFns...)
	}
)

// StorageService stores uploaded blobs in an S3-compatible backend keyed by
// their content id, so a fetch by cid is a plain object lookup and the
// server never stores the same content twice.
type StorageService struct {
	config *sc.Config
}

func NewStorageService(config *sc.Config) *StorageService {
	return &StorageService{config: config}
}

// ContentID computes the CIDv1 (raw codec, sha2-256) of data. The server
// always derives the id itself; clients cannot choose their keys.
func ContentID(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

func (s *StorageService) getClient() (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,     // MINIO_ROOT_USER
			s.config.S3RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return client, nil
}

// Upload stores data under its content id and returns the id plus the
// public gateway URL for it.
func (s *StorageService) Upload(ctx context.Context, data []byte, fileName string) (string, string, error) {
	contentID, err := ContentID(data)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", common.ErrUploadFailed, err)
	}

	client, err := s.getClient()
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", common.ErrUploadFailed, err)
	}

	bucket := s.config.S3Bucket
	in := &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &contentID,
		Body:   bytes.NewReader(data),
	}
	if fileName != "" {
		in.Metadata = map[string]string{"filename": fileName}
	}

	if _, err := putObject(client, ctx, in); err != nil {
		return "", "", fmt.Errorf("%w: %v", common.ErrUploadFailed, err)
	}

	return contentID, s.GatewayURL(contentID), nil
}

// Fetch returns the blob stored under contentID. An unparseable cid or a
// missing object yields ErrorNotFound.
func (s *StorageService) Fetch(ctx context.Context, contentID string) ([]byte, error) {
	if _, err := cid.Decode(contentID); err != nil {
		return nil, common.ErrorNotFound
	}

	client, err := s.getClient()
	if err != nil {
		return nil, common.ErrorInternal
	}

	bucket := s.config.S3Bucket
	out, err := getObject(client, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &contentID,
	})
	if err != nil {
		return nil, common.ErrorNotFound
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// GatewayURL builds the public gateway URL for a content id.
func (s *StorageService) GatewayURL(contentID string) string {
	base := strings.TrimRight(s.config.GatewayBaseURL, "/")
	if base == "" {
		return ""
	}
	return base + "/ipfs/" + contentID
}
