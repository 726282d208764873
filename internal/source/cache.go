package source

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"
)

var (
	ErrCacheMiss    = errors.New("source: cache miss")
	ErrCacheCorrupt = errors.New("source: cache entry corrupt")
)

// DefaultCacheDir is the cache directory used when none is configured,
// relative to the working directory.
const DefaultCacheDir = ".cache"

const (
	cacheMagic   = "DFTU"
	cacheVersion = 1
	headerSize   = len(cacheMagic) + 1 + 8
)

var (
	encoder = sync.OnceValue(func() *zstd.Encoder {
		enc, _ := zstd.NewWriter(nil) // no options, cannot fail
		return enc
	})
	decoder = sync.OnceValue(func() *zstd.Decoder {
		dec, _ := zstd.NewReader(nil)
		return dec
	})
)

// Cache stores parsed translation units, one entry per source file named
// after the file's base name. An entry remembers the xxh3 fingerprint of
// the source it was parsed from, so an edited file is never served a
// stale tree.
type Cache struct {
	Dir string
}

// NewCache returns a cache rooted at dir.
func NewCache(dir string) *Cache {
	if dir == "" {
		dir = DefaultCacheDir
	}
	return &Cache{Dir: dir}
}

// Init creates the cache directory if it does not exist.
func (c *Cache) Init() error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("source: create cache dir: %w", err)
	}
	return nil
}

// EntryPath returns the cache entry path for a source file.
func (c *Cache) EntryPath(path string) string {
	return filepath.Join(c.Dir, filepath.Base(path)+"_cache")
}

// Get rehydrates the unit cached for path. It returns ErrCacheMiss when no
// entry exists and ErrCacheCorrupt when the entry cannot be trusted for
// src: wrong format, wrong fingerprint, or an undecodable payload.
func (c *Cache) Get(path string, src []byte) (*TranslationUnit, error) {
	data, err := os.ReadFile(c.EntryPath(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("source: read cache: %w", err)
	}

	if len(data) < headerSize || string(data[:len(cacheMagic)]) != cacheMagic {
		return nil, fmt.Errorf("%w: bad header", ErrCacheCorrupt)
	}
	if v := data[len(cacheMagic)]; v != cacheVersion {
		return nil, fmt.Errorf("%w: version %d", ErrCacheCorrupt, v)
	}
	if sum := binary.LittleEndian.Uint64(data[len(cacheMagic)+1 : headerSize]); sum != xxh3.Hash(src) {
		return nil, fmt.Errorf("%w: source changed", ErrCacheCorrupt)
	}

	raw, err := decoder().DecodeAll(data[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	var u TranslationUnit
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	if len(u.Nodes) == 0 || u.Nodes[0].Kind != KindTranslationUnit {
		return nil, fmt.Errorf("%w: no root node", ErrCacheCorrupt)
	}
	u.Path = path
	return &u, nil
}

// Put writes the entry for path, replacing any previous one atomically.
func (c *Cache) Put(path string, src []byte, u *TranslationUnit) error {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(u); err != nil {
		return fmt.Errorf("source: encode cache: %w", err)
	}

	data := make([]byte, headerSize, headerSize+payload.Len()/4)
	copy(data, cacheMagic)
	data[len(cacheMagic)] = cacheVersion
	binary.LittleEndian.PutUint64(data[len(cacheMagic)+1:], xxh3.Hash(src))
	data = encoder().EncodeAll(payload.Bytes(), data)

	dst := c.EntryPath(path)
	tmp, err := os.CreateTemp(c.Dir, filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("source: write cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("source: write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("source: write cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("source: write cache: %w", err)
	}
	return nil
}
