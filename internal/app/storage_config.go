package app

import "github.com/artisanhq/atelier/internal/storage"

// ObjectStoreConfig converts StorageConfig into the storage package
// representation.
func (c StorageConfig) ObjectStoreConfig() storage.Config {
	return storage.Config{
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		UseSSL:          c.UseSSL,
		Region:          c.Region,
	}
}
