// internal/services/storage_service.go
package services

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"github.com/coopcredito/solicitudes-backend/internal/config"
	"github.com/coopcredito/solicitudes-backend/internal/models"
)

var allowedDocumentExtensions = []string{".pdf", ".jpg", ".jpeg", ".png"}

// StorageService hands out upload and download URLs for applicant documents.
// File bytes never pass through this service.
type StorageService struct {
	s3Client *s3.S3
	config   *config.Config
	clock    Clock
}

// UploadTicket is what a client needs to PUT a document straight to storage.
type UploadTicket struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewStorageService(config *config.Config, clock Clock) (*StorageService, error) {
	if config.AWS.AccessKeyID == "" {
		// Return service without S3 for local development
		return &StorageService{config: config, clock: clock}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AWS.AccessKeyID,
			config.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		config:   config,
		clock:    clock,
	}, nil
}

// PresignUpload reserves a storage key for a document and signs a PUT for it.
func (s *StorageService) PresignUpload(solicitudID uuid.UUID, docType models.DocumentType, fileName string) (*UploadTicket, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !isAllowedExtension(ext) {
		return nil, &InvalidInputError{Field: "file_name", Reason: fmt.Sprintf("file type %q is not allowed", ext)}
	}

	key := s.documentKey(solicitudID, docType, ext)
	ttl := s.config.AWS.PresignTTL
	expiresAt := s.clock.Now().Add(ttl)

	if s.s3Client == nil {
		return &UploadTicket{
			URL:       fmt.Sprintf("%s/uploads/%s", s.localBaseURL(), key),
			Key:       key,
			Method:    "PUT",
			ExpiresAt: expiresAt,
		}, nil
	}

	req, _ := s.s3Client.PutObjectRequest(&s3.PutObjectInput{
		Bucket:      aws.String(s.config.AWS.S3Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentTypeFor(ext)),
	})

	url, err := req.Presign(ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &UploadTicket{
		URL:       url,
		Key:       key,
		Method:    "PUT",
		ExpiresAt: expiresAt,
	}, nil
}

// PresignDownload signs a GET for a previously uploaded document.
func (s *StorageService) PresignDownload(key string) (string, error) {
	if key == "" {
		return "", &InvalidInputError{Field: "storage_key", Reason: "document has no stored file"}
	}
	if s.s3Client == nil {
		return fmt.Sprintf("%s/uploads/%s", s.localBaseURL(), key), nil
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(s.config.AWS.PresignTTL)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url, nil
}

func (s *StorageService) documentKey(solicitudID uuid.UUID, docType models.DocumentType, ext string) string {
	folder := strings.ToLower(strings.ReplaceAll(string(docType), " ", "_"))
	return fmt.Sprintf("solicitudes/%s/%s/%s%s", solicitudID, folder, uuid.New().String(), ext)
}

func (s *StorageService) localBaseURL() string {
	return fmt.Sprintf("http://%s:%s", s.config.Server.Host, s.config.Server.Port)
}

func isAllowedExtension(ext string) bool {
	for _, allowed := range allowedDocumentExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func contentTypeFor(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}
