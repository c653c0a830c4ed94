package erp_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/dealerops/pricesync/internal/erp"
	"github.com/dealerops/pricesync/internal/erp/erptest"
)

func TestUploadCreatesFolderOnce(t *testing.T) {
	fake := erptest.New()
	store := erp.NewDocumentStore(fake, nil)
	ctx := context.Background()

	for i, name := range []string{"a.xlsx", "b.xlsx"} {
		id, err := store.Upload(ctx, erp.Document{
			Name:    name,
			Content: []byte("payload"),
			Folder:  "FULL_FILE_BACKUP",
			Tag:     "FULL_PRICEFILE_BACKUP_20250101_000000",
		})
		if err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
		if id == 0 {
			t.Fatalf("upload %d returned zero id", i)
		}
	}

	if n := fake.Count(erp.ModelFolder); n != 1 {
		t.Fatalf("folders = %d, want 1", n)
	}
	attachments := fake.Records(erp.ModelAttachment)
	if len(attachments) != 2 {
		t.Fatalf("attachments = %d, want 2", len(attachments))
	}
	raw, err := base64.StdEncoding.DecodeString(attachments[0]["datas"].(string))
	if err != nil || string(raw) != "payload" {
		t.Fatalf("datas = %q, %v", raw, err)
	}
	if attachments[0]["mimetype"] != erp.XLSXMimeType {
		t.Errorf("mimetype = %v", attachments[0]["mimetype"])
	}
	if attachments[0]["description"] != "FULL_PRICEFILE_BACKUP_20250101_000000" {
		t.Errorf("description = %v", attachments[0]["description"])
	}

	folderID := fake.Records(erp.ModelFolder)[0]["id"]
	for _, d := range fake.Records(erp.ModelDocument) {
		if d["folder_id"] != folderID {
			t.Errorf("document folder_id = %v, want %v", d["folder_id"], folderID)
		}
	}
}

func TestUploadPropagatesFailure(t *testing.T) {
	fake := erptest.New()
	boom := errors.New("boom")
	fake.Inject("create", erp.ModelAttachment, boom)

	_, err := erp.NewDocumentStore(fake, nil).Upload(context.Background(), erp.Document{Name: "x.xlsx", Folder: "F"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if fake.Count(erp.ModelDocument) != 0 {
		t.Fatal("no document may be linked after a failed attachment")
	}
}
