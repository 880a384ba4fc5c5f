// Package metadata implements the per-folder index of encrypted files.
//
// Every end-to-end-encrypted folder carries one metadata document on the
// server. It maps server-side (encrypted) filenames to the key material any
// authorized client needs to decrypt and verify the file contents. The
// document is only ever rewritten under the folder's advisory lock.
package metadata

import (
	"encoding/json"
	"fmt"

	encryption "github.com/vaultsync/vaultsync/internal/crypto"
)

// DocumentVersion is the metadata schema version written by this client.
const DocumentVersion = 1

// Record describes one encrypted file in the folder.
type Record struct {
	OriginalFilename     string `json:"originalFilename"`
	EncryptedFilename    string `json:"encryptedFilename"`
	EncryptionKey        []byte `json:"encryptionKey"`
	InitializationVector []byte `json:"initializationVector"`
	AuthenticationTag    []byte `json:"authenticationTag,omitempty"`
	Mimetype             string `json:"mimetype"`
	FileVersion          int    `json:"fileVersion"`
	MetadataKey          int    `json:"metadataKey"`
}

// Document is the folder's encrypted-file index. Files keeps server order;
// new records are appended.
type Document struct {
	Version int      `json:"version"`
	Files   []Record `json:"files"`
}

// New creates an empty metadata document.
func New() *Document {
	return &Document{Version: DocumentVersion}
}

// Parse decodes a metadata document fetched from the server.
// An empty body is treated as a folder with no metadata yet.
func Parse(raw []byte) (*Document, error) {
	if len(raw) == 0 {
		return New(), nil
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse metadata document: %w", err)
	}
	if doc.Version == 0 {
		doc.Version = DocumentVersion
	}
	return &doc, nil
}

// Marshal serializes the document for upload. It refuses to serialize a
// document containing records with incomplete key material: a record must
// never reach the server without its key, IV, and authentication tag.
func (d *Document) Marshal() ([]byte, error) {
	for i := range d.Files {
		if err := d.Files[i].validate(); err != nil {
			return nil, fmt.Errorf("record %q: %w", d.Files[i].OriginalFilename, err)
		}
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize metadata document: %w", err)
	}
	return raw, nil
}

// FindByOriginalName returns the record for the given original filename.
func (d *Document) FindByOriginalName(name string) (Record, bool) {
	for _, rec := range d.Files {
		if rec.OriginalFilename == name {
			return rec, true
		}
	}
	return Record{}, false
}

// Upsert replaces the record matching rec's original filename, or appends
// rec if the folder has no record for that file yet.
func (d *Document) Upsert(rec Record) {
	for i := range d.Files {
		if d.Files[i].OriginalFilename == rec.OriginalFilename {
			d.Files[i] = rec
			return
		}
	}
	d.Files = append(d.Files, rec)
}

func (r *Record) validate() error {
	if r.OriginalFilename == "" {
		return fmt.Errorf("missing original filename")
	}
	if r.EncryptedFilename == "" {
		return fmt.Errorf("missing encrypted filename")
	}
	if len(r.EncryptionKey) != encryption.KeySize {
		return fmt.Errorf("encryption key must be %d bytes, got %d", encryption.KeySize, len(r.EncryptionKey))
	}
	if len(r.InitializationVector) != encryption.IVSize {
		return fmt.Errorf("IV must be %d bytes, got %d", encryption.IVSize, len(r.InitializationVector))
	}
	if len(r.AuthenticationTag) != encryption.TagSize {
		return fmt.Errorf("authentication tag must be %d bytes, got %d", encryption.TagSize, len(r.AuthenticationTag))
	}
	return nil
}
