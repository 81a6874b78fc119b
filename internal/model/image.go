package model

import "time"

// Image is the metadata row for one uploaded file.
//
// Filename is the generated storage name "<hex token>-<sanitised original>".
// It is unique in the table and is also the name of exactly one file in the
// upload directory. OwnerID never changes after creation.
type Image struct {
	ID           int64     `json:"id"           db:"id"`
	Filename     string    `json:"filename"     db:"filename"`
	OwnerID      int64     `json:"ownerId"      db:"owner_id"`
	OriginalName string    `json:"originalName" db:"original_name"`
	ContentType  string    `json:"contentType"  db:"content_type"`
	Size         int64     `json:"size"         db:"size_bytes"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
}
