package models

import "time"

// ArtifactMapping binds a catalog product to the blob that is delivered for it.
type ArtifactMapping struct {
	Version     int64
	ProductID   string
	FileKey     string
	DisplayName string
}

// CatalogVersion is one published revision of the product → artifact table.
type CatalogVersion struct {
	Version     int64
	Note        string
	PublishedAt time.Time
}
