package storage

import (
	"github.com/pkg/errors"

	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/config"
	"github.com/customeros/ticketstack/internal/enum"
	"github.com/customeros/ticketstack/services/storage/aws_client"
)

// NewAttachmentStorage builds the backend selected by ATTACHMENT_STORAGE.
func NewAttachmentStorage(cfg *config.StorageConfig, uploadsRoot string) (interfaces.AttachmentStorage, error) {
	switch enum.StorageBackend(cfg.Backend) {
	case enum.StorageLocal, "":
		return NewFilesystemStore(uploadsRoot), nil
	case enum.StorageS3:
		client, err := aws_client.NewAWSClient(aws_client.S3Config{
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AccessKeyID,
			AccessKeySecret: cfg.AccessKeySecret,
		})
		if err != nil {
			return nil, errors.Wrap(err, "s3 client")
		}
		return NewObjectStore(client, cfg.Bucket, enum.StorageS3), nil
	case enum.StorageR2:
		if cfg.R2AccountID == "" {
			return nil, errors.New("CLOUDFLARE_R2_ACCOUNT_ID is required for r2 storage")
		}
		client, err := aws_client.NewR2Client(aws_client.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.AccessKeyID,
			AccessKeySecret: cfg.AccessKeySecret,
		})
		if err != nil {
			return nil, errors.Wrap(err, "r2 client")
		}
		return NewObjectStore(client, cfg.Bucket, enum.StorageR2), nil
	default:
		return nil, errors.Errorf("unknown attachment storage %q", cfg.Backend)
	}
}
