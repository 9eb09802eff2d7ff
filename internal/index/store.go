package index

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/plantdeck/plantdeck/internal/pkg/errs"
)

// An index persists as a pair: <prefix>.vec holds the raw matrix,
// <prefix>.json the model version and metadata. Both are written to temp
// paths and renamed, vectors first, so a readable metadata file implies a
// complete pair.

var vecMagic = [4]byte{'P', 'D', 'V', 'C'}

const vecFormatVersion = 1

type manifest[M any] struct {
	ModelVersion string `json:"model_version"`
	Dim          int    `json:"dim"`
	Rows         int    `json:"rows"`
	Truncated    []int  `json:"truncated,omitempty"`
	Entries      []M    `json:"entries"`
}

func (ix *Index[M]) Save(pathPrefix string) error {
	if err := os.MkdirAll(filepath.Dir(pathPrefix), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.Write(vecMagic[:])
	for _, v := range []uint32{vecFormatVersion, uint32(ix.Dim), uint32(ix.Rows())} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	raw := make([]byte, 4*len(ix.vectors))
	for i, f := range ix.vectors {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(f))
	}
	buf.Write(raw)

	man := manifest[M]{
		ModelVersion: ix.ModelVersion,
		Dim:          ix.Dim,
		Rows:         ix.Rows(),
		Truncated:    ix.Truncated,
		Entries:      ix.Entries,
	}
	manData, err := json.Marshal(man)
	if err != nil {
		return err
	}

	vecPath, jsonPath := pathPrefix+".vec", pathPrefix+".json"
	if err := os.WriteFile(vecPath+".tmp", buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	if err := os.WriteFile(jsonPath+".tmp", manData, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(vecPath+".tmp", vecPath); err != nil {
		return err
	}
	return os.Rename(jsonPath+".tmp", jsonPath)
}

// Load reads an index pair. Any missing file, corruption, or disagreement
// between the two files surfaces as ErrIndexUnavailable: retrieval must not
// start on a broken index.
func Load[M any](pathPrefix string) (*Index[M], error) {
	manData, err := os.ReadFile(pathPrefix + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: %s.json: %v", errs.ErrIndexUnavailable, pathPrefix, err)
	}
	var man manifest[M]
	if err := json.Unmarshal(manData, &man); err != nil {
		return nil, fmt.Errorf("%w: %s.json: %v", errs.ErrIndexUnavailable, pathPrefix, err)
	}
	raw, err := os.ReadFile(pathPrefix + ".vec")
	if err != nil {
		return nil, fmt.Errorf("%w: %s.vec: %v", errs.ErrIndexUnavailable, pathPrefix, err)
	}
	if len(raw) < 16 || !bytes.Equal(raw[:4], vecMagic[:]) {
		return nil, fmt.Errorf("%w: %s.vec: bad header", errs.ErrIndexUnavailable, pathPrefix)
	}
	format := binary.LittleEndian.Uint32(raw[4:8])
	dim := int(binary.LittleEndian.Uint32(raw[8:12]))
	rows := int(binary.LittleEndian.Uint32(raw[12:16]))
	if format != vecFormatVersion {
		return nil, fmt.Errorf("%w: %s.vec: unsupported format %d", errs.ErrIndexUnavailable, pathPrefix, format)
	}
	if dim != man.Dim || rows != man.Rows || rows != len(man.Entries) {
		return nil, fmt.Errorf("%w: %s: vector/metadata shape mismatch", errs.ErrIndexUnavailable, pathPrefix)
	}
	payload := raw[16:]
	if len(payload) != 4*dim*rows {
		return nil, fmt.Errorf("%w: %s.vec: truncated payload", errs.ErrIndexUnavailable, pathPrefix)
	}
	vectors := make([]float32, dim*rows)
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:]))
	}
	return &Index[M]{
		ModelVersion: man.ModelVersion,
		Dim:          man.Dim,
		Entries:      man.Entries,
		Truncated:    man.Truncated,
		vectors:      vectors,
	}, nil
}
