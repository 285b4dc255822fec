package storage

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/hyperjump/codeindex/internal/models"
)

// maxVectorLen bounds the length prefix accepted when decoding a blob.
const maxVectorLen = 1 << 20

// EncodeVectorBlob gzips a big-endian int32 length followed by big-endian float32 values.
func EncodeVectorBlob(vec []float32) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := binary.Write(gz, binary.BigEndian, int32(len(vec))); err != nil {
		return nil, fmt.Errorf("write vector length: %w", err)
	}
	raw := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.BigEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	if _, err := gz.Write(raw); err != nil {
		return nil, fmt.Errorf("write vector: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeVectorBlob reverses EncodeVectorBlob.
func DecodeVectorBlob(blob []byte) ([]float32, error) {
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	defer gz.Close()
	var n int32
	if err := binary.Read(gz, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: read length: %w", ErrMalformedPayload, err)
	}
	if n < 0 || n > maxVectorLen {
		return nil, fmt.Errorf("%w: invalid length %d", ErrMalformedPayload, n)
	}
	raw := make([]byte, 4*int(n))
	if _, err := io.ReadFull(gz, raw); err != nil {
		return nil, fmt.Errorf("%w: read values: %w", ErrMalformedPayload, err)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

// EncodeVectorJSON renders vec as a JSON array of numbers.
func EncodeVectorJSON(vec []float32) (string, error) {
	b, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("marshal vector: %w", err)
	}
	return string(b), nil
}

// DecodeVectorJSON parses a JSON array of numbers.
func DecodeVectorJSON(s string) ([]float32, error) {
	var out []float32
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return out, nil
}

// DecodeRecordVector returns the record's vector, preferring the binary blob and
// falling back to the JSON form. Empty vectors are reported as malformed.
func DecodeRecordVector(rec *models.ChunkRecord) ([]float32, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrMalformedPayload)
	}
	var (
		vec []float32
		err error
	)
	switch {
	case len(rec.VectorBlob) > 0:
		vec, err = DecodeVectorBlob(rec.VectorBlob)
	case rec.VectorJSON != "":
		vec, err = DecodeVectorJSON(rec.VectorJSON)
	default:
		return nil, fmt.Errorf("%w: record %s has no vector", ErrMalformedPayload, rec.ID)
	}
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: record %s has an empty vector", ErrMalformedPayload, rec.ID)
	}
	return vec, nil
}
