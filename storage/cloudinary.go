package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryStore uploads artifacts as Cloudinary raw resources inside one folder.
type CloudinaryStore struct {
	cld        *cloudinary.Cloudinary
	cloudName  string
	folder     string
	httpClient *http.Client
}

// NewCloudinaryStore builds a client from explicit credentials
func NewCloudinaryStore(cloudName, apiKey, apiSecret, folder string) (*CloudinaryStore, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("cloudinary credentials are not configured")
	}

	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary initialization failed: %w", err)
	}
	log.Printf("🔧 Using Cloudinary cloud %s, folder %s", cloudName, folder)

	return &CloudinaryStore{
		cld:        cld,
		cloudName:  cloudName,
		folder:     folder,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (s *CloudinaryStore) Save(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	if !validRef(name) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	overwrite := false
	unique := false
	_, err := s.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:         s.folder,
		PublicID:       name,
		Overwrite:      &overwrite,
		UniqueFilename: &unique,
		ResourceType:   "raw",
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload failed: %w", err)
	}
	return name, nil
}

// Open downloads the raw resource over its public delivery URL
func (s *CloudinaryStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if !validRef(ref) {
		return nil, ErrNotFound
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.deliveryURL(ref), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary download failed: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("cloudinary download failed: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *CloudinaryStore) Delete(ctx context.Context, ref string) error {
	if !validRef(ref) {
		return nil
	}
	_, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     s.publicID(ref),
		ResourceType: "raw",
	})
	if err != nil {
		return fmt.Errorf("cloudinary delete failed: %w", err)
	}
	return nil
}

func (s *CloudinaryStore) publicID(ref string) string {
	return path.Join(s.folder, ref)
}

func (s *CloudinaryStore) deliveryURL(ref string) string {
	return fmt.Sprintf("https://res.cloudinary.com/%s/raw/upload/%s",
		url.PathEscape(s.cloudName), (&url.URL{Path: s.publicID(ref)}).EscapedPath())
}
