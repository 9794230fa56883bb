package registry

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/interfaces"
)

// LocalArtifactStore keeps trained model binaries on the local
// filesystem under basePath/modelID/model.bin.
type LocalArtifactStore struct {
	logger   *logrus.Logger
	basePath string
}

// NewLocalArtifactStore creates a filesystem artifact store.
func NewLocalArtifactStore(basePath string, logger *logrus.Logger) (*LocalArtifactStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &LocalArtifactStore{logger: logger, basePath: basePath}, nil
}

// Store writes the artifact and returns its reference path.
func (s *LocalArtifactStore) Store(ctx context.Context, modelID string, artifact io.Reader) (string, error) {
	dir := filepath.Join(s.basePath, modelID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}

	ref := filepath.Join(dir, "model.bin")
	file, err := os.Create(ref)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, artifact); err != nil {
		return "", fmt.Errorf("failed to store artifact: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"modelID": modelID,
		"ref":     ref,
	}).Info("Stored model artifact")

	return ref, nil
}

// Retrieve opens the artifact for reading.
func (s *LocalArtifactStore) Retrieve(ctx context.Context, ref string) (io.ReadCloser, error) {
	file, err := os.Open(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return file, nil
}

// Delete removes the artifact.
func (s *LocalArtifactStore) Delete(ctx context.Context, ref string) error {
	if err := os.Remove(ref); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// Exists checks whether the artifact is present.
func (s *LocalArtifactStore) Exists(ctx context.Context, ref string) (bool, error) {
	_, err := os.Stat(ref)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// S3ArtifactStore keeps trained model binaries in an S3 bucket under
// prefix/modelID/model.bin. References are s3://bucket/key URIs.
type S3ArtifactStore struct {
	logger   *logrus.Logger
	bucket   string
	prefix   string
	client   *s3.S3
	uploader *s3manager.Uploader
}

// NewS3ArtifactStore creates an S3 artifact store using the default AWS
// credential chain.
func NewS3ArtifactStore(bucket, region, prefix string, logger *logrus.Logger) (*S3ArtifactStore, error) {
	if bucket == "" {
		return nil, errors.NewValidationError(errors.CodeMissingField, "S3 bucket is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to create AWS session")
	}

	return &S3ArtifactStore{
		logger:   logger,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

func (s *S3ArtifactStore) key(modelID string) string {
	if s.prefix == "" {
		return fmt.Sprintf("%s/model.bin", modelID)
	}
	return fmt.Sprintf("%s/%s/model.bin", s.prefix, modelID)
}

func (s *S3ArtifactStore) parseRef(ref string) (string, error) {
	trimmed := strings.TrimPrefix(ref, fmt.Sprintf("s3://%s/", s.bucket))
	if trimmed == ref {
		return "", errors.NewValidationError(errors.CodeInvalidInput, "Artifact reference does not match configured bucket").
			WithContext("ref", ref)
	}
	return trimmed, nil
}

// Store uploads the artifact and returns its s3:// reference.
func (s *S3ArtifactStore) Store(ctx context.Context, modelID string, artifact io.Reader) (string, error) {
	key := s.key(modelID)

	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   artifact,
	})
	if err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to upload artifact to S3")
	}

	ref := fmt.Sprintf("s3://%s/%s", s.bucket, key)

	s.logger.WithFields(logrus.Fields{
		"modelID": modelID,
		"bucket":  s.bucket,
		"key":     key,
	}).Info("Stored model artifact in S3")

	return ref, nil
}

// Retrieve downloads the artifact.
func (s *S3ArtifactStore) Retrieve(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, err := s.parseRef(ref)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to download artifact from S3")
	}
	return out.Body, nil
}

// Delete removes the artifact.
func (s *S3ArtifactStore) Delete(ctx context.Context, ref string) error {
	key, err := s.parseRef(ref)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to delete artifact from S3")
	}
	return nil
}

// Exists checks whether the artifact is present.
func (s *S3ArtifactStore) Exists(ctx context.Context, ref string) (bool, error) {
	key, err := s.parseRef(ref)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == "NotFound" || aerr.Code() == s3.ErrCodeNoSuchKey) {
			return false, nil
		}
		return false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to check artifact in S3")
	}
	return true, nil
}

// NewArtifactStore creates the artifact store selected by the registry
// configuration.
func NewArtifactStore(config *Config, logger *logrus.Logger) (interfaces.ArtifactStore, error) {
	switch config.StorageBackend {
	case "local", "":
		return NewLocalArtifactStore(config.StoragePath, logger)
	case "s3":
		return NewS3ArtifactStore(config.S3Bucket, config.S3Region, config.S3Prefix, logger)
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "Unsupported artifact storage backend").
			WithContext("backend", config.StorageBackend)
	}
}
