package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jhoicas/recaudo-api/internal/application/reconciliation"
	"github.com/jhoicas/recaudo-api/pkg/config"
)

// Ensure S3Store implements reconciliation.FileStore.
var _ reconciliation.FileStore = (*S3Store)(nil)

// S3Store persistencia durable de comprobantes en S3 (o compatible, ej. MinIO).
// El path devuelto ("s3 key") es la única referencia que ven los callers.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store construye el almacenamiento con la configuración de la app.
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("cargar configuración AWS: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // MinIO y compatibles
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Save escribe los bytes y devuelve la llave estable del objeto.
func (s *S3Store) Save(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectKey := path.Join(s.prefix, key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("guardar objeto %s: %w", objectKey, err)
	}
	return objectKey, nil
}

// Fetch recupera los bytes de un objeto por su llave.
func (s *S3Store) Fetch(ctx context.Context, objectKey string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("leer objeto %s: %w", objectKey, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("leer cuerpo de %s: %w", objectKey, err)
	}
	return data, nil
}
