/*
NAME
  meta.go

DESCRIPTION
  Package meta provides an ordered set of key=value metadata tags attached to
  each capture, with tag validation and encoding and decoding functions.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package meta provides an ordered set of key=value metadata tags attached to
// each capture, with tag validation and encoding and decoding functions.
package meta

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// This is the headsize of our encoded metadata, which is carried in the
// comment segment of a captured image.
const headSize = 4

const (
	majVer = 1
	minVer = 0
)

// Indices of bytes for uint16 metadata length.
const (
	dataLenIdx = 2
)

// MaxPayload is the size of the buffer a tag is passed to the encoder in,
// including its terminator, so tags can be at most MaxPayload-1 bytes long.
const MaxPayload = 128

// Separators used in tags and encoded metadata.
const (
	kvSep    = "="
	entrySep = "\t"
)

var (
	errInvalidMeta          = errors.New("invalid metadata given")
	ErrUnexpectedMetaFormat = errors.New("unexpected meta format")
	ErrNoSeparator          = errors.New("tag has no key=value separator")
	ErrTagTooLong           = errors.New("tag too long")
	ErrEmptyKey             = errors.New("tag has empty key")
)

// CheckTag checks that tag is a key=value pair that fits the tag payload.
func CheckTag(tag string) error {
	if len(tag) > MaxPayload-1 {
		return fmt.Errorf("%w: %d bytes, max %d", ErrTagTooLong, len(tag), MaxPayload-1)
	}
	i := strings.Index(tag, kvSep)
	switch {
	case i < 0:
		return ErrNoSeparator
	case i == 0:
		return ErrEmptyKey
	}
	return nil
}

// SplitTag checks tag and splits it into its key and value. The value may
// itself contain '='.
func SplitTag(tag string) (key, val string, err error) {
	err = CheckTag(tag)
	if err != nil {
		return "", "", err
	}
	kv := strings.SplitN(tag, kvSep, 2)
	return kv[0], kv[1], nil
}

// Data provides the storage and encoding of metadata tags, preserving the
// order in which keys were first added.
type Data struct {
	mu    sync.RWMutex
	data  map[string]string
	order []string
}

// New returns a pointer to a new Data.
func New() *Data {
	return &Data{data: make(map[string]string)}
}

// Add adds metadata with key and val, replacing any value already held for
// key.
func (m *Data) Add(key, val string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[key]; !exists {
		m.order = append(m.order, key)
	}
	m.data[key] = val
}

// AddTag checks a key=value tag and adds it.
func (m *Data) AddTag(tag string) error {
	k, v, err := SplitTag(tag)
	if err != nil {
		return fmt.Errorf("could not add tag %q: %w", tag, err)
	}
	m.Add(k, v)
	return nil
}

// Tags returns the metadata as key=value tags in insertion order.
func (m *Data) Tags() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tags := make([]string, len(m.order))
	for i, k := range m.order {
		tags[i] = k + kvSep + m.data[k]
	}
	return tags
}

// Len returns the number of keys held.
func (m *Data) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Reset removes all metadata.
func (m *Data) Reset() {
	m.mu.Lock()
	m.data = make(map[string]string)
	m.order = m.order[:0]
	m.mu.Unlock()
}

// Encode encodes the metadata into a byte slice with a header describing the
// version and length of data, followed by the data in TSV format.
func (m *Data) Encode() []byte {
	s := strings.Join(m.Tags(), entrySep)
	enc := make([]byte, headSize, headSize+len(s))
	enc[1] = (majVer << 4) | minVer
	binary.BigEndian.PutUint16(enc[dataLenIdx:dataLenIdx+2], uint16(len(s)))
	return append(enc, s...)
}

// GetAll returns metadata keys and values from encoded metadata d, in order.
func GetAll(d []byte) ([][2]string, error) {
	err := checkMeta(d)
	if err != nil {
		return nil, err
	}
	d = d[headSize:]
	if len(d) == 0 {
		return nil, nil
	}
	entries := strings.Split(string(d), entrySep)
	all := make([][2]string, len(entries))
	for i, entry := range entries {
		kv := strings.SplitN(entry, kvSep, 2)
		if len(kv) != 2 {
			return nil, ErrUnexpectedMetaFormat
		}
		copy(all[i][:], kv)
	}
	return all, nil
}

// checkMeta checks that a valid metadata header exists in the given data.
func checkMeta(d []byte) error {
	if len(d) < headSize || d[0] != 0 || binary.BigEndian.Uint16(d[dataLenIdx:headSize]) != uint16(len(d[headSize:])) {
		return errInvalidMeta
	}
	return nil
}
