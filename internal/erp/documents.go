package erp

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"
)

// XLSXMimeType is attached to uploaded backup workbooks.
const XLSXMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Document is one file destined for the ERP document store.
type Document struct {
	// Name is the display file name.
	Name string

	// Content is the raw file body.
	Content []byte

	// Folder is the logical folder; it is created when missing.
	Folder string

	// Tag groups related uploads, e.g. FULL_PRICEFILE_BACKUP_20250101_120000.
	Tag string

	// MimeType defaults to XLSXMimeType.
	MimeType string
}

// DocumentStore uploads files as attachments linked into document folders.
type DocumentStore struct {
	client Client
	log    *zap.Logger
}

// NewDocumentStore wraps client.
func NewDocumentStore(client Client, log *zap.Logger) *DocumentStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentStore{client: client, log: log}
}

// Upload stores doc and returns the attachment id.
func (s *DocumentStore) Upload(ctx context.Context, doc Document) (int64, error) {
	folderID, err := s.folder(ctx, doc.Folder)
	if err != nil {
		return 0, err
	}

	mime := doc.MimeType
	if mime == "" {
		mime = XLSXMimeType
	}
	attachment := Values{
		"name":     doc.Name,
		"type":     "binary",
		"datas":    base64.StdEncoding.EncodeToString(doc.Content),
		"mimetype": mime,
	}
	if doc.Tag != "" {
		attachment["description"] = doc.Tag
	}
	ids, err := s.client.Create(ctx, ModelAttachment, []Values{attachment})
	if err != nil {
		return 0, fmt.Errorf("failed to create attachment %s: %w", doc.Name, err)
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("attachment %s: create returned no id", doc.Name)
	}
	attachmentID := ids[0]

	link := Values{
		"name":          doc.Name,
		"attachment_id": attachmentID,
		"folder_id":     folderID,
	}
	if _, err := s.client.Create(ctx, ModelDocument, []Values{link}); err != nil {
		return 0, fmt.Errorf("failed to link document %s: %w", doc.Name, err)
	}

	s.log.Info("uploaded document",
		zap.String("name", doc.Name),
		zap.String("folder", doc.Folder),
		zap.String("tag", doc.Tag),
		zap.Int("bytes", len(doc.Content)),
		zap.Int64("attachment_id", attachmentID),
	)
	return attachmentID, nil
}

// folder resolves a folder by exact name, creating a top-level one if absent.
func (s *DocumentStore) folder(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("document folder name is empty")
	}
	ids, err := s.client.Search(ctx, ModelFolder, Domain{Eq("name", name)}, Page{Limit: 1})
	if err != nil {
		return 0, fmt.Errorf("failed to search folder %s: %w", name, err)
	}
	if len(ids) > 0 {
		return ids[0], nil
	}
	created, err := s.client.Create(ctx, ModelFolder, []Values{{"name": name, "parent_folder_id": false}})
	if err != nil {
		return 0, fmt.Errorf("failed to create folder %s: %w", name, err)
	}
	if len(created) == 0 {
		return 0, fmt.Errorf("folder %s: create returned no id", name)
	}
	s.log.Info("created document folder", zap.String("folder", name), zap.Int64("id", created[0]))
	return created[0], nil
}
