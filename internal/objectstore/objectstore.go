// Package objectstore stores signature images and uploaded photos.
package objectstore

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"

	"github.com/minio/crc64nvme"
)

var ErrObjectNotFound = errors.New("object not found")

// Object describes a stored blob.
type Object struct {
	Key         string
	Size        int64
	ContentType string
	Checksum    string // CRC64-NVME, hex
}

// Store is implemented by S3Store and MemoryStore.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (*Object, error)
	Get(ctx context.Context, key string) ([]byte, *Object, error)
	Delete(ctx context.Context, key string) error
}

// Checksum returns the hex encoded CRC64-NVME of data.
func Checksum(data []byte) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], crc64nvme.Checksum(data))
	return hex.EncodeToString(buf[:])
}
