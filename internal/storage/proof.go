package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

type ProofKind string

const (
	ProofPhoto     ProofKind = "photo"
	ProofSignature ProofKind = "signature"
)

func (k ProofKind) Valid() bool {
	return k == ProofPhoto || k == ProofSignature
}

var ErrDisabled = errors.New("proof storage is not configured")

// ProofStore keeps proof-of-delivery blobs and returns a reference that is
// stored on the delivery.
type ProofStore interface {
	Put(ctx context.Context, deliveryID uint64, kind ProofKind, contentType string, data []byte) (string, error)
}

// ObjectPath is deliveries/<id>/<kind>-<uuid><ext>.
func ObjectPath(deliveryID uint64, kind ProofKind, contentType string) string {
	return path.Join("deliveries", fmt.Sprint(deliveryID), fmt.Sprintf("%s-%s%s", kind, uuid.NewString(), extension(contentType)))
}

func extension(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "application/pdf":
		return ".pdf"
	default:
		return ""
	}
}

type gcsProofStore struct {
	client *gcs.Client
	bucket string
}

func NewGCSProofStore(client *gcs.Client, bucket string) ProofStore {
	return &gcsProofStore{client: client, bucket: bucket}
}

// Put writes the object with a Firebase download token so the returned URL
// is readable without signing.
func (s *gcsProofStore) Put(ctx context.Context, deliveryID uint64, kind ProofKind, contentType string, data []byte) (string, error) {
	objectPath := ObjectPath(deliveryID, kind, contentType)
	token := uuid.NewString()
	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{
		"firebaseStorageDownloadTokens": token,
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return FirebaseDownloadURL(s.bucket, objectPath, token), nil
}

func FirebaseDownloadURL(bucket, objectPath, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(objectPath), token)
}

// S3PutAPI is the part of *s3.Client the proof store needs.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3ProofStore struct {
	client S3PutAPI
	bucket string
}

func NewS3ProofStore(ctx context.Context, region, bucket string) (ProofStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3ProofStoreWithClient(s3.NewFromConfig(cfg), bucket), nil
}

func NewS3ProofStoreWithClient(client S3PutAPI, bucket string) ProofStore {
	return &s3ProofStore{client: client, bucket: bucket}
}

func (s *s3ProofStore) Put(ctx context.Context, deliveryID uint64, kind ProofKind, contentType string, data []byte) (string, error) {
	key := ObjectPath(deliveryID, kind, contentType)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload proof to s3: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

type disabledProofStore struct{}

func NewDisabledProofStore() ProofStore {
	return disabledProofStore{}
}

func (disabledProofStore) Put(context.Context, uint64, ProofKind, string, []byte) (string, error) {
	return "", ErrDisabled
}
