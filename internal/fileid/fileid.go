// Package fileid builds the identifiers and checksums of chunk records.
package fileid

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ChunkID returns the record id owner:path:index. path is stored slash-separated.
func ChunkID(owner, path string, index int) string {
	return owner + ":" + filepath.ToSlash(path) + ":" + strconv.Itoa(index)
}

// ParseChunkID splits a record id into its parts. The owner may not contain
// a colon; the path may.
func ParseChunkID(id string) (owner, path string, index int, err error) {
	first := strings.IndexByte(id, ':')
	last := strings.LastIndexByte(id, ':')
	if first < 0 || last <= first {
		return "", "", 0, fmt.Errorf("invalid chunk id %q", id)
	}
	index, err = strconv.Atoi(id[last+1:])
	if err != nil || index < 0 {
		return "", "", 0, fmt.Errorf("invalid chunk index in id %q", id)
	}
	return id[:first], id[first+1 : last], index, nil
}

// OwnerPrefix returns the id prefix shared by every record of owner.
func OwnerPrefix(owner string) string {
	return owner + ":"
}

// Checksum returns the lowercase hex SHA-1 of text.
func Checksum(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
