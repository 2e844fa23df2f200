package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"SocialSchedulerAPI/models"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	ftypes "github.com/h2non/filetype/types"
)

// allowedFileTypes is the accepted media set, validated against magic-number
// signatures rather than extensions or Content-Type headers.
var allowedFileTypes = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/gif":  {".gif"},
	"image/webp": {".webp"},
	"video/mp4":  {".mp4"},
}

var allowedExtToMIME = map[string][]string{
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".gif":  {"image/gif"},
	".webp": {"image/webp"},
	".mp4":  {"video/mp4"},
}

// DetectFileType sniffs the real MIME type from the file header and resets
// the reader.
func DetectFileType(file multipart.File) (ftypes.Type, error) {
	// filetype needs at least 262 bytes; read 512 to be safe.
	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil {
		return ftypes.Unknown, fmt.Errorf("unable to read file header for type detection: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		return ftypes.Unknown, fmt.Errorf("unable to reset file reader: %w", err)
	}

	kind, err := filetype.Match(buf[:n])
	if err != nil {
		return ftypes.Unknown, fmt.Errorf("file type detection failed: %w", err)
	}

	return kind, nil
}

// StorageService stores uploaded media on local disk and hands back URLs the
// platform adapters can reference when publishing.
type StorageService struct {
	uploadDir string
	baseURL   string
	maxSize   int64
}

func NewStorageService(uploadDir, baseURL string, maxSize int64) (*StorageService, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, err
	}

	return &StorageService{
		uploadDir: uploadDir,
		baseURL:   baseURL,
		maxSize:   maxSize,
	}, nil
}

func (s *StorageService) SaveFile(file multipart.File, header *multipart.FileHeader, userID string) (*models.Media, error) {
	if header.Size == 0 {
		return nil, fmt.Errorf("empty files are not allowed")
	}
	if header.Size > s.maxSize {
		return nil, fmt.Errorf("file size %d bytes exceeds maximum of %d bytes", header.Size, s.maxSize)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	acceptableMIMEs, extAllowed := allowedExtToMIME[ext]
	if !extAllowed {
		return nil, fmt.Errorf("file extension %q is not allowed; accepted: .jpg, .jpeg, .png, .gif, .webp, .mp4", ext)
	}

	kind, err := DetectFileType(file)
	if err != nil {
		return nil, err
	}

	detectedMIME := kind.MIME.Value
	if kind == ftypes.Unknown {
		return nil, fmt.Errorf("file content does not match any allowed type")
	}
	if _, ok := allowedFileTypes[detectedMIME]; !ok {
		return nil, fmt.Errorf("file content type %s is not allowed", detectedMIME)
	}

	// The extension must match the sniffed content type.
	mimeMatchesExt := false
	for _, m := range acceptableMIMEs {
		if m == detectedMIME {
			mimeMatchesExt = true
			break
		}
	}
	if !mimeMatchesExt {
		return nil, fmt.Errorf("file extension %s does not match detected content type %s", ext, detectedMIME)
	}

	mediaType := models.MediaImage
	if strings.HasPrefix(detectedMIME, "video/") {
		mediaType = models.MediaVideo
	}

	// Discard the client filename entirely; keep only the validated extension.
	randomBytes := make([]byte, 16)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("failed to generate filename: %w", err)
	}
	filename := hex.EncodeToString(randomBytes) + ext

	userDir := filepath.Join(s.uploadDir, userID)
	if err := os.MkdirAll(userDir, 0755); err != nil {
		return nil, err
	}

	filePath := filepath.Join(userDir, filename)
	dst, err := os.Create(filePath)
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	// Limit the copy too: Content-Length can lie.
	written, err := io.Copy(dst, io.LimitReader(file, s.maxSize+1))
	if err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("error writing file: %w", err)
	}
	if written > s.maxSize {
		os.Remove(filePath)
		return nil, fmt.Errorf("file stream exceeded maximum of %d bytes", s.maxSize)
	}

	media := &models.Media{
		ID:        uuid.New().String(),
		UserID:    userID,
		Filename:  filename,
		Path:      filePath,
		URL:       fmt.Sprintf("%s/uploads/%s/%s", s.baseURL, userID, filename),
		Type:      mediaType,
		Size:      written,
		MimeType:  detectedMIME,
		CreatedAt: time.Now(),
	}

	return media, nil
}

func (s *StorageService) DeleteFile(media *models.Media) error {
	return os.Remove(media.Path)
}
