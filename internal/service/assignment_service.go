package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusflow/lms-api/internal/models"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
	"github.com/campusflow/lms-api/pkg/storage"
)

type assignmentRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	CreateFile(ctx context.Context, file *models.AttachedFile) error
	ListFiles(ctx context.Context, assignmentID string) ([]models.AttachedFile, error)
	FindFileByID(ctx context.Context, id string) (*models.AttachedFile, error)
}

type fileStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
}

// CreateAssignmentRequest describes a new gradable task.
type CreateAssignmentRequest struct {
	CourseID    string     `json:"course_id" validate:"required"`
	Name        string     `json:"name" validate:"required"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
}

// AttachFileRequest carries an uploaded attachment's metadata.
type AttachFileRequest struct {
	FileName    string
	ContentType string
	SizeBytes   int64
}

// AssignmentService manages assignments and their attached files. The
// workflow core stores only file references; content goes straight to the
// file store and comes back out through signed download URLs.
type AssignmentService struct {
	repo         assignmentRepository
	courses      courseReader
	store        fileStore
	signer       *storage.SignedURLSigner
	maxFileSize  int64
	allowedMIMEs map[string]struct{}
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(repo assignmentRepository, courses courseReader, store fileStore, signer *storage.SignedURLSigner, maxFileSize int64, allowedMIMEs []string, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mimes := make(map[string]struct{}, len(allowedMIMEs))
	for _, m := range allowedMIMEs {
		mimes[m] = struct{}{}
	}
	return &AssignmentService{repo: repo, courses: courses, store: store, signer: signer, maxFileSize: maxFileSize, allowedMIMEs: mimes, validator: validate, logger: logger}
}

// ListByCourse returns the assignments of a course.
func (s *AssignmentService) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	assignments, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// Get returns one assignment.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

// Create registers a new assignment.
func (s *AssignmentService) Create(ctx context.Context, req CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	assignment := &models.Assignment{CourseID: req.CourseID, Name: req.Name, Description: req.Description, Deadline: req.Deadline}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	return assignment, nil
}

// ListFiles returns the attachment references of an assignment.
func (s *AssignmentService) ListFiles(ctx context.Context, assignmentID string) ([]models.AttachedFile, error) {
	if _, err := s.Get(ctx, assignmentID); err != nil {
		return nil, err
	}
	files, err := s.repo.ListFiles(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list files")
	}
	return files, nil
}

// AttachFile streams an upload into the file store and records its
// reference.
func (s *AssignmentService) AttachFile(ctx context.Context, assignmentID string, req AttachFileRequest, content io.Reader) (*models.AttachedFile, error) {
	if _, err := s.Get(ctx, assignmentID); err != nil {
		return nil, err
	}
	if req.FileName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file name is required")
	}
	if s.maxFileSize > 0 && req.SizeBytes > s.maxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.maxFileSize))
	}
	if len(s.allowedMIMEs) > 0 {
		if _, ok := s.allowedMIMEs[req.ContentType]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("content type %q is not allowed", req.ContentType))
		}
	}

	relPath := filepath.Join("assignments", assignmentID, uuid.NewString()+"-"+filepath.Base(req.FileName))
	if _, err := s.store.SaveStream(relPath, content); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	file := &models.AttachedFile{
		AssignmentID: assignmentID,
		FileName:     req.FileName,
		Path:         relPath,
		ContentType:  req.ContentType,
		SizeBytes:    req.SizeBytes,
	}
	if err := s.repo.CreateFile(ctx, file); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record file")
	}
	return file, nil
}

// DownloadURL issues a signed, expiring token for one attachment.
func (s *AssignmentService) DownloadURL(ctx context.Context, fileID string) (*models.AttachmentDownload, error) {
	file, err := s.repo.FindFileByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load file")
	}
	token, expiresAt, err := s.signer.Generate(file.ID, file.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return &models.AttachmentDownload{
		FileID:    file.ID,
		FileName:  file.FileName,
		URL:       "/files/download?token=" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveDownload validates a signed token and opens the referenced file.
func (s *AssignmentService) ResolveDownload(ctx context.Context, token string) (*models.AttachedFile, *os.File, error) {
	fileID, _, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}
	file, err := s.repo.FindFileByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load file")
	}
	handle, err := s.store.Open(file.Path)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	return file, handle, nil
}
