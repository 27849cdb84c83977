package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// emit writes v as indented JSON in json mode, otherwise the text lines.
func emit(w io.Writer, format string, v any, lines ...string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func decodeHex(raw string) ([]byte, error) {
	return hexutil.Decode(raw)
}
