package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrMiss is returned by Get when no live entry exists for the key
	ErrMiss = errors.New("cache miss")
	// ErrStoreClosed is returned after Close
	ErrStoreClosed = errors.New("cache store closed")
)

// Entry is one cached translation result
type Entry struct {
	// Value is the classifier's JSON result, verbatim
	Value []byte `msgpack:"value"`
	// Mode is the gateway mode that produced the value
	Mode string `msgpack:"mode"`
	// Frames is the batch size the value was computed from
	Frames int `msgpack:"frames"`
	// StoredAt is when the entry was written
	StoredAt time.Time `msgpack:"stored_at"`
}

// Store caches translation results by content key
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, key string, e Entry) error
	Ping(ctx context.Context) error
	Close() error
}

// Key derives a content address from the given parts. Each part is length
// prefixed so that part boundaries are unambiguous.
func Key(parts ...[]byte) string {
	h := sha256.New()
	var size [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(size[:], uint64(len(p)))
		h.Write(size[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Encode serializes an entry with msgpack
func Encode(e Entry) ([]byte, error) {
	data, err := msgpack.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return data, nil
}

// Decode deserializes an entry written by Encode
func Decode(data []byte) (Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return e, nil
}

// NopStore never holds anything
type NopStore struct{}

func (NopStore) Get(context.Context, string) (Entry, error) { return Entry{}, ErrMiss }
func (NopStore) Set(context.Context, string, Entry) error   { return nil }
func (NopStore) Ping(context.Context) error                 { return nil }
func (NopStore) Close() error                               { return nil }
