package storage

import (
	"context"
	"fmt"

	"project-review-server/config"
)

// New selects the artifact backend named by STORAGE_BACKEND.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case "", "local":
		return NewLocalStore(cfg.Upload.Dir)
	case "cloudinary":
		c := cfg.Storage.Cloudinary
		return NewCloudinaryStore(c.CloudName, c.APIKey, c.APISecret, c.Folder)
	case "s3":
		s := cfg.Storage.S3
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   s.Bucket,
			Region:   s.Region,
			Endpoint: s.Endpoint,
			Prefix:   s.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// PolicyFromConfig builds the upload policy from UPLOAD_* settings.
func PolicyFromConfig(cfg *config.Config) UploadPolicy {
	return UploadPolicy{
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		AllowedMIMETypes:  cfg.Upload.AllowedMIMETypes,
		MaxBytes:          cfg.Upload.MaxBytes,
	}
}
