package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/ioutil"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// ErrNotFound is returned when an archived object does not exist.
var ErrNotFound = errors.New("archive: object not found")

type MinIOStorage struct {
	minioClient *minio.Client
	bucketName  string
	logger      *zap.Logger
}

func NewMinIOStorage(minioClient *minio.Client, bucketName string, logger *zap.Logger) *MinIOStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MinIOStorage{
		minioClient: minioClient,
		bucketName:  bucketName,
		logger:      logger,
	}
}

// MakeBucket creates the bucket. An existing bucket we own is not an error.
func (storage *MinIOStorage) MakeBucket(ctx context.Context) error {
	err := storage.minioClient.MakeBucket(ctx, storage.bucketName, minio.MakeBucketOptions{})
	if err == nil {
		storage.logger.Info("Created bucket", zap.String("bucket", storage.bucketName))
		return nil
	}
	exists, errBucketExists := storage.minioClient.BucketExists(ctx, storage.bucketName)
	if errBucketExists == nil && exists {
		return nil
	}
	return err
}

func (storage *MinIOStorage) StoreFile(ctx context.Context, objectName string, data []byte, contentType string) error {
	info, err := storage.minioClient.PutObject(ctx, storage.bucketName, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("store %s: %w", objectName, err)
	}

	storage.logger.Info("Stored object",
		zap.String("bucket", storage.bucketName),
		zap.String("object", objectName),
		zap.String("size", humanize.Bytes(uint64(info.Size))))
	return nil
}

func (storage *MinIOStorage) DownloadFile(ctx context.Context, objectName string) ([]byte, error) {
	file, err := storage.minioClient.GetObject(ctx, storage.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := ioutil.ReadAll(file)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, objectName)
		}
		return nil, err
	}
	return data, nil
}
