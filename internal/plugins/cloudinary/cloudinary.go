package cloudinary

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"whisper/internal/config"
	"whisper/internal/core/domain"
)

// CloudinaryClient stores message media through the Cloudinary upload API.
type CloudinaryClient struct {
	cld     *cloudinary.Cloudinary
	timeout time.Duration
}

func NewCloudinaryClient(cfg config.MediaConfig) (*CloudinaryClient, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	if cfg.BaseURL != "" {
		cld.Config.API.UploadPrefix = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &CloudinaryClient{cld: cld, timeout: cfg.Timeout}, nil
}

func (c *CloudinaryClient) Upload(ctx context.Context, in domain.MediaUpload) (*domain.MediaRef, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resource := in.ResourceType
	if resource == "" {
		resource = "auto"
	}
	res, err := c.cld.Upload.Upload(ctx, bytes.NewReader(in.Data), uploader.UploadParams{
		PublicID:     in.PublicID,
		Folder:       in.Folder,
		ResourceType: resource,
	})
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	return &domain.MediaRef{
		URL:          res.SecureURL,
		PublicID:     res.PublicID,
		ResourceType: res.ResourceType,
		Bytes:        int64(res.Bytes),
	}, nil
}

// Delete destroys an asset. An asset that is already gone is not an error.
func (c *CloudinaryClient) Delete(ctx context.Context, publicID, resourceType string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if resourceType == "" {
		resourceType = "image"
	}
	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: resourceType,
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy: %s", res.Error.Message)
	}
	if res.Result != "ok" && res.Result != "not found" {
		return fmt.Errorf("cloudinary destroy: unexpected result %q", res.Result)
	}
	return nil
}

func (c *CloudinaryClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
