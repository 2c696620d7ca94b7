package core

import (
	"errors"
	"testing"
	"time"
)

func TestAccessRights_HasAndCapabilities(t *testing.T) {
	rights := RightRead | RightWrite

	if !rights.Has(RightRead) || !rights.Has(RightWrite) {
		t.Fatalf("expected read and write to be set on %v", rights)
	}
	if rights.Has(RightDelete) || rights.Has(RightCreate) {
		t.Fatalf("expected delete and create to be unset on %v", rights)
	}

	caps := rights.Capabilities()
	if !caps.CanRead || !caps.CanWrite {
		t.Fatalf("expected read/write capabilities, got %#v", caps)
	}
	if caps.CanDelete || caps.CanCreateFolder {
		t.Fatalf("expected delete/create capabilities off, got %#v", caps)
	}
}

func TestAccessRights_String(t *testing.T) {
	if got := RightsNone.String(); got != "none" {
		t.Fatalf("expected %q, got %q", "none", got)
	}
	if got := (RightRead | RightCreate).String(); got != "read|create" {
		t.Fatalf("unexpected rights string %q", got)
	}
	all := RightRead | RightWrite | RightDelete | RightCreate
	if got := all.String(); got != "read|write|delete|create" {
		t.Fatalf("unexpected rights string %q", got)
	}
}

func TestParseAccessRights_IgnoresUnknownNames(t *testing.T) {
	rights := ParseAccessRights([]string{" Read ", "WRITE", "owner", "create_folder"})
	if !rights.Has(RightRead) || !rights.Has(RightWrite) || !rights.Has(RightCreate) {
		t.Fatalf("expected read|write|create, got %v", rights)
	}
	if rights.Has(RightDelete) {
		t.Fatalf("delete should not be set by unknown names, got %v", rights)
	}
	if got := ParseAccessRights(nil); got != RightsNone {
		t.Fatalf("expected none for nil input, got %v", got)
	}
}

func TestByteRangeValidate(t *testing.T) {
	valid := ByteRange{Start: 0, End: 99, Total: 100}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid range, got %v", err)
	}

	cases := []ByteRange{
		{Start: -1, End: 10, Total: 100},
		{Start: 20, End: 10, Total: 100},
		{Start: 0, End: 100, Total: 100},
	}
	for _, r := range cases {
		err := r.Validate()
		if !errors.Is(err, ErrInvalidByteRange) {
			t.Fatalf("expected invalid byte range for %+v, got %v", r, err)
		}
	}
}

func TestItemDescriptorIsFolder(t *testing.T) {
	size := int64(42)
	file := ItemDescriptor{ID: "item_1", Name: "report.txt", Size: &size}
	if file.IsFolder() {
		t.Fatalf("item with a size must not be a folder")
	}
	folder := ItemDescriptor{ID: "item_2", Name: "archive"}
	if !folder.IsFolder() {
		t.Fatalf("item without a size must be a folder")
	}
}

func TestUploadSessionExpired(t *testing.T) {
	now := time.Now().UTC()
	session := UploadSession{URL: "https://upload.example.com/s1", ExpiresAt: now.Add(time.Minute)}
	if session.Expired(now) {
		t.Fatalf("session should still be usable before expiry")
	}
	if !session.Expired(now.Add(time.Minute)) {
		t.Fatalf("session must be expired at its deadline")
	}
}

func TestValidateResourceID(t *testing.T) {
	if err := ValidateResourceID("b!a1b2c3"); err != nil {
		t.Fatalf("expected valid resource id, got %v", err)
	}

	for _, id := range []string{"", "   ", "a/b", `a\b`, "a?b", "a#b", "a..b"} {
		err := ValidateResourceID(id)
		if !errors.Is(err, ErrInvalidResourceID) {
			t.Fatalf("expected invalid resource id for %q, got %v", id, err)
		}
	}
}

func TestValidateItemName(t *testing.T) {
	if err := ValidateItemName("quarterly report.pdf"); err != nil {
		t.Fatalf("expected valid item name, got %v", err)
	}

	tooLong := make([]byte, maxItemNameLength+1)
	for i := range tooLong {
		tooLong[i] = 'a'
	}

	cases := []string{
		"",
		"  ",
		string(tooLong),
		`bad"name`,
		"bad*name",
		"bad:name",
		"bad<name",
		"bad|name",
		"~lockfile",
		"trailing.",
	}
	for _, name := range cases {
		err := ValidateItemName(name)
		if !errors.Is(err, ErrInvalidItemName) {
			t.Fatalf("expected invalid item name for %q, got %v", name, err)
		}
	}
}
