// Package catalog loads the list of bit types offered to the operator.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/atc"
)

// ErrEmpty is returned when the catalog has no bit types.
var ErrEmpty = errors.New("bit catalog is empty")

// Fallback is used when the catalog can't be read.
func Fallback() []string { return []string{atc.NoTool} }

type document struct {
	BitTypes []string `json:"bitTypes"`
}

// Load reads bit types from a file path or an http(s) URL.
//
// It always returns a usable list: on failure the error is returned along with Fallback().
func Load(ctx context.Context, source string) ([]string, error) {
	bits, err := load(ctx, source)
	if err != nil {
		return Fallback(), err
	}
	if len(bits) == 0 {
		return Fallback(), ErrEmpty
	}
	return bits, nil
}

func load(ctx context.Context, source string) ([]string, error) {
	var r io.ReadCloser
	if IsURL(source) {
		req, err := http.NewRequestWithContext(ctx, "GET", source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode/100 != 2 {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: %s", source, resp.Status)
		}
		r = resp.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, err
		}
		r = f
	}
	defer r.Close()

	var doc document
	err := json.NewDecoder(r).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", source, err)
	}
	return doc.BitTypes, nil
}
