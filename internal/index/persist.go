package index

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"marketrag/internal/domain"
	"marketrag/internal/zlog"
)

const blobVersion = 2

var errEmptyModel = errors.New("index has no embedding model")

// blob is the gob payload of the vectors file.
type blob struct {
	Version   int
	Model     string
	Dimension int
	IDs       []string
	Digest    string
	Vectors   [][]float32
}

// Save writes the vectors blob, then the chunk metadata. Each file is
// written to a temporary sibling and renamed into place. The blob carries
// the digest of the metadata it was saved with, so a pair that did not come
// from the same Save fails to load.
func (ix *Index) Save(chunksPath, vectorsPath string) error {
	ids := make([]string, len(ix.chunks))
	for i, ch := range ix.chunks {
		ids[i] = ch.ID
	}
	b := blob{Version: blobVersion, Model: ix.model, Dimension: ix.dimension, IDs: ids, Digest: ix.digest, Vectors: ix.vectors}
	if err := writeAtomic(vectorsPath, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(&b)
	}); err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}
	if err := writeAtomic(chunksPath, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, ch := range ix.chunks {
			if err := enc.Encode(ch); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	zlog.Info("index saved",
		zap.String("chunks", chunksPath),
		zap.String("vectors", vectorsPath),
		zap.Int("count", len(ix.chunks)))
	return nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads a previously saved index. Any disagreement between the two
// files is reported as domain.ErrIndexCorruption.
func Load(chunksPath, vectorsPath string) (*Index, error) {
	chunks, err := readChunks(chunksPath)
	if err != nil {
		return nil, corrupt(chunksPath, err)
	}
	b, err := readBlob(vectorsPath)
	if err != nil {
		return nil, corrupt(vectorsPath, err)
	}
	if err := check(chunks, b); err != nil {
		return nil, corrupt(vectorsPath, err)
	}
	ix, err := assemble(b.Model, b.Dimension, chunks, b.Vectors)
	if err != nil {
		return nil, corrupt(vectorsPath, err)
	}
	return ix, nil
}

// LoadIfExists loads the index when both files are present. When neither
// exists it reports false with no error; exactly one of them is corruption.
func LoadIfExists(chunksPath, vectorsPath string) (*Index, bool, error) {
	chunksOK, err := exists(chunksPath)
	if err != nil {
		return nil, false, err
	}
	vectorsOK, err := exists(vectorsPath)
	if err != nil {
		return nil, false, err
	}
	switch {
	case !chunksOK && !vectorsOK:
		return nil, false, nil
	case !chunksOK:
		return nil, false, corrupt(chunksPath, errors.New("chunk metadata missing"))
	case !vectorsOK:
		return nil, false, corrupt(vectorsPath, errors.New("vector blob missing"))
	}
	ix, err := Load(chunksPath, vectorsPath)
	if err != nil {
		return nil, false, err
	}
	return ix, true, nil
}

func corrupt(path string, cause error) error {
	return domain.NewOpError("load index", path, domain.ErrIndexCorruption, cause)
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func readChunks(path string) ([]domain.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []domain.Chunk
	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var ch domain.Chunk
		err := dec.Decode(&ch)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chunk record %d: %w", len(chunks)+1, err)
		}
		if ch.ID == "" {
			return nil, fmt.Errorf("chunk record %d has no id", len(chunks)+1)
		}
		ch.Seq = len(chunks)
		chunks = append(chunks, ch)
	}
	return chunks, nil
}

func readBlob(path string) (blob, error) {
	var b blob
	f, err := os.Open(path)
	if err != nil {
		return b, err
	}
	defer f.Close()
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&b); err != nil {
		return b, fmt.Errorf("decode vectors: %w", err)
	}
	return b, nil
}

func check(chunks []domain.Chunk, b blob) error {
	if b.Version != blobVersion {
		return fmt.Errorf("unsupported index version %d", b.Version)
	}
	if b.Model == "" {
		return errEmptyModel
	}
	if len(b.IDs) != len(chunks) || len(b.Vectors) != len(chunks) {
		return fmt.Errorf("%d chunk records, %d ids, %d vectors", len(chunks), len(b.IDs), len(b.Vectors))
	}
	if len(chunks) > 0 && b.Dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", b.Dimension)
	}
	for i, ch := range chunks {
		if b.IDs[i] != ch.ID {
			return fmt.Errorf("record %d: chunk id %q does not match vector id %q", i, ch.ID, b.IDs[i])
		}
	}
	if got := digestOf(b.Model, b.Dimension, chunks); got != b.Digest {
		return errors.New("chunk metadata does not belong to these vectors")
	}
	return nil
}
