package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// Snapshot layout, little-endian:
//
//	magic [8]byte "CIXSNAP1"
//	count uint32
//	count x { idLen uint32, id []byte, dim uint32, values [dim]float32 }
//
// Entries are written in insertion order. Replaying them through the same
// strategy and params rebuilds an identical graph.
var snapshotMagic = [8]byte{'C', 'I', 'X', 'S', 'N', 'A', 'P', '1'}

const (
	maxSnapshotID  = 1 << 16
	maxSnapshotDim = 1 << 20
)

type snapshotEntry struct {
	id  string
	vec []float32
}

// Persist writes every resident entry (or the staging buffer while unbound) to path.
func (x *Index) Persist(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty snapshot path", ErrIO)
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	entries := make([]snapshotEntry, 0, x.state.size())
	x.state.each(func(id string, vec []float32) {
		entries = append(entries, snapshotEntry{id: id, vec: vec})
	})

	if err := writeSnapshot(path, entries, x.lockTimeout); err != nil {
		return err
	}
	x.logger.Info("Index persisted", zap.String("path", path), zap.Int("size", len(entries)))
	return nil
}

// Load replaces the index contents with the snapshot at path. The whole file is
// decoded before the index is touched, so a failed load leaves it unchanged.
func (x *Index) Load(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty snapshot path", ErrIO)
	}
	entries, err := readSnapshot(path, x.lockTimeout)
	if err != nil {
		return err
	}
	staging := newOrderedVectors()
	for _, e := range entries {
		staging.put(e.id, e.vec)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if staging.len() == 0 {
		x.state = &unboundState{staging: staging}
		x.logger.Info("Index loaded", zap.String("path", path), zap.Int("size", 0))
		return nil
	}
	b, skipped, err := x.bind(staging, len(entries[0].vec), x.params)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	x.state = b
	x.logger.Info("Index loaded",
		zap.String("path", path),
		zap.Int("size", b.size()),
		zap.Int("skipped", skipped),
		zap.Int("dimensions", b.dim))
	return nil
}

func writeSnapshot(path string, entries []snapshotEntry, timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: create snapshot dir: %w", ErrIO, err)
	}
	unlock, err := lockSnapshot(path, false, timeout)
	if err != nil {
		return err
	}
	defer unlock()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrIO, tmp, err)
	}
	w := bufio.NewWriter(f)
	err = encodeSnapshot(w, entries)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: write %s: %w", ErrIO, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename snapshot: %w", ErrIO, err)
	}
	return nil
}

func readSnapshot(path string, timeout time.Duration) ([]snapshotEntry, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	unlock, err := lockSnapshot(path, true, timeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}
	defer f.Close()
	entries, err := decodeSnapshot(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return entries, nil
}

// lockSnapshot takes an advisory lock on path+".lock", retrying until timeout.
func lockSnapshot(path string, shared bool, timeout time.Duration) (func(), error) {
	l := flock.New(path + ".lock")
	deadline := time.Now().Add(timeout)
	for {
		var (
			locked bool
			err    error
		)
		if shared {
			locked, err = l.TryRLock()
		} else {
			locked, err = l.TryLock()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: lock %s: %w", ErrIO, path, err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: snapshot %s is locked by another process", ErrIO, path)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func encodeSnapshot(w io.Writer, entries []snapshotEntry) error {
	if _, err := w.Write(snapshotMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(entries))); err != nil {
		return err
	}
	var hdr [4]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(e.id)))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := io.WriteString(w, e.id); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(e.vec)))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := w.Write(float32SliceToBytes(e.vec)); err != nil {
			return err
		}
	}
	return nil
}

func decodeSnapshot(r io.Reader) ([]snapshotEntry, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrMalformedPayload, err)
	}
	if magic != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrMalformedPayload, magic[:])
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: read count: %w", ErrMalformedPayload, err)
	}
	entries := make([]snapshotEntry, 0, min(int(n), 1<<16))
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return nil, fmt.Errorf("%w: entry %d: read id length: %w", ErrMalformedPayload, i, err)
		}
		if idLen > maxSnapshotID {
			return nil, fmt.Errorf("%w: entry %d: id length %d", ErrMalformedPayload, i, idLen)
		}
		id := make([]byte, idLen)
		if _, err := io.ReadFull(r, id); err != nil {
			return nil, fmt.Errorf("%w: entry %d: read id: %w", ErrMalformedPayload, i, err)
		}
		var dim uint32
		if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
			return nil, fmt.Errorf("%w: entry %d: read dimension: %w", ErrMalformedPayload, i, err)
		}
		if dim == 0 || dim > maxSnapshotDim {
			return nil, fmt.Errorf("%w: entry %d: dimension %d", ErrMalformedPayload, i, dim)
		}
		buf := make([]byte, 4*int(dim))
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: entry %d: read vector: %w", ErrMalformedPayload, i, err)
		}
		entries = append(entries, snapshotEntry{id: string(id), vec: bytesToFloat32Slice(buf)})
	}
	var extra [1]byte
	if _, err := r.Read(extra[:]); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after %d entries", ErrMalformedPayload, n)
	}
	return entries, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
