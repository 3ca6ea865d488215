package vector

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/keeperhq/keeper/internal/models"
)

// Persisted artifact extensions: <name>.idx holds the raw vectors,
// <name>.meta the JSON side-table with the parallel documents and metadata.
const (
	indexExt = ".idx"
	metaExt  = ".meta"
)

// sideTable is the current on-disk layout of the .meta artifact.
type sideTable struct {
	Documents []string           `json:"documents"`
	Metadata  []models.ChunkMeta `json:"metadata"`
}

// ArtifactPaths returns the index and side-table paths for name under dir.
func ArtifactPaths(dir, name string) (indexPath, metaPath string) {
	return filepath.Join(dir, name+indexExt), filepath.Join(dir, name+metaExt)
}

// Exists reports whether both persisted artifacts for name are present.
// Partial presence counts as not found.
func Exists(dir, name string) bool {
	indexPath, metaPath := ArtifactPaths(dir, name)
	if _, err := os.Stat(indexPath); err != nil {
		return false
	}
	if _, err := os.Stat(metaPath); err != nil {
		return false
	}
	return true
}

// RemoveArtifacts deletes both persisted artifacts for name, ignoring files
// that are already gone.
func RemoveArtifacts(dir, name string) error {
	indexPath, metaPath := ArtifactPaths(dir, name)
	for _, p := range []string{indexPath, metaPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// Save writes both artifacts for name. Format of the .idx file: dimension
// (uint32), count (uint32), then count*dimension float32 values, all little
// endian.
func (x *FlatIndex) Save(name string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	indexPath, metaPath := ArtifactPaths(x.dir, name)

	f, err := os.Create(indexPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(x.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(x.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, vec := range x.vectors {
		if _, err := f.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}

	data, err := json.Marshal(sideTable{Documents: x.documents, Metadata: x.metadata})
	if err != nil {
		return fmt.Errorf("marshal side-table: %w", err)
	}
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return fmt.Errorf("write side-table: %w", err)
	}
	return nil
}

// Load reads both artifacts for name and replaces the in-memory contents.
// Returns ErrIndexNotFound when either artifact is missing, and
// ErrCorruptIndex when the contents cannot be normalized into the in-memory
// shape (unreadable vectors, unknown side-table layout, or parallel arrays of
// differing lengths).
func (x *FlatIndex) Load(name string) error {
	indexPath, metaPath := ArtifactPaths(x.dir, name)
	if !Exists(x.dir, name) {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}

	dimensions, vectors, err := readVectors(indexPath)
	if err != nil {
		return err
	}
	documents, metadata, err := readSideTable(metaPath)
	if err != nil {
		return err
	}
	if len(documents) != len(vectors) || len(metadata) != len(vectors) {
		return fmt.Errorf("%w: %d vectors, %d documents, %d metadata entries",
			ErrCorruptIndex, len(vectors), len(documents), len(metadata))
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.dimensions = dimensions
	x.vectors = vectors
	x.documents = documents
	x.metadata = metadata
	return nil
}

func readVectors(path string) (int, [][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return 0, nil, fmt.Errorf("%w: read dimensions: %v", ErrCorruptIndex, err)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return 0, nil, fmt.Errorf("%w: read count: %v", ErrCorruptIndex, err)
	}
	vectors := make([][]float32, 0, n)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return 0, nil, fmt.Errorf("%w: read vector %d: %v", ErrCorruptIndex, i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	return int(dim), vectors, nil
}

// readSideTable parses the .meta artifact, tolerating the historical layout:
// either a mapping {"documents": [...], "metadata": [...]} or a fixed
// 2-tuple [documents, metadata].
func readSideTable(path string) ([]string, []models.ChunkMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read side-table: %w", err)
	}

	var table sideTable
	if err := json.Unmarshal(data, &table); err == nil && table.Documents != nil {
		return table.Documents, table.Metadata, nil
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err == nil && len(pair) == 2 {
		var documents []string
		var metadata []models.ChunkMeta
		if err := json.Unmarshal(pair[0], &documents); err != nil {
			return nil, nil, fmt.Errorf("%w: legacy side-table documents: %v", ErrCorruptIndex, err)
		}
		if err := json.Unmarshal(pair[1], &metadata); err != nil {
			return nil, nil, fmt.Errorf("%w: legacy side-table metadata: %v", ErrCorruptIndex, err)
		}
		return documents, metadata, nil
	}

	return nil, nil, fmt.Errorf("%w: unrecognized side-table layout", ErrCorruptIndex)
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
