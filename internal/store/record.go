package store

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// encodeRecord marshals v and compresses it with zstd.
func encodeRecord(v any) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(plain, nil), nil
}

// decodeRecord decompresses a zstd record and unmarshals it into v.
func decodeRecord(data []byte, v any) error {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	plain, err := dec.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("decompress record: %w", err)
	}
	return json.Unmarshal(plain, v)
}
