package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/bamsammich/ferry/internal/plan"
)

const recordVersion = 1

// chunkRecord is the on-disk form of a chunk: zstd-compressed JSON.
type chunkRecord struct {
	Version  int              `json:"version"`
	Index    int              `json:"index"`
	Size     int64            `json:"size"`
	Files    []plan.FileEntry `json:"files"`
	Checksum string           `json:"checksum"`
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

// memberChecksum is an xxhash64 over the member list.
func memberChecksum(files []plan.FileEntry) string {
	h := xxhash.New()
	var buf []byte
	for _, f := range files {
		buf = append(buf[:0], f.Path...)
		buf = append(buf, 0)
		buf = strconv.AppendInt(buf, f.Size, 10)
		buf = append(buf, '\n')
		h.Write(buf) //nolint:errcheck // hash writes never fail
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func encodeChunk(c plan.Chunk) ([]byte, error) {
	raw, err := json.Marshal(chunkRecord{
		Version:  recordVersion,
		Index:    c.Index,
		Size:     c.Size,
		Files:    c.Files,
		Checksum: memberChecksum(c.Files),
	})
	if err != nil {
		return nil, fmt.Errorf("encode chunk %d: %w", c.Index, err)
	}
	return encoder.EncodeAll(raw, nil), nil
}

func decodeChunk(data []byte, index int) (plan.Chunk, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return plan.Chunk{}, fmt.Errorf("%w %d: decompress: %v", ErrCorruptChunk, index, err)
	}
	var rec chunkRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return plan.Chunk{}, fmt.Errorf("%w %d: %v", ErrCorruptChunk, index, err)
	}
	if rec.Version != recordVersion {
		return plan.Chunk{}, fmt.Errorf("%w %d: unsupported version %d", ErrCorruptChunk, index, rec.Version)
	}
	if rec.Index != index {
		return plan.Chunk{}, fmt.Errorf("%w %d: record claims index %d", ErrCorruptChunk, index, rec.Index)
	}
	if rec.Checksum != memberChecksum(rec.Files) {
		return plan.Chunk{}, fmt.Errorf("%w %d: checksum mismatch", ErrCorruptChunk, index)
	}
	return plan.Chunk{Index: rec.Index, Files: rec.Files, Size: rec.Size}, nil
}
