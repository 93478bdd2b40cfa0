package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// readInput decodes a YAML (or JSON) document from path into v. A path of "-"
// reads stdin. Unknown fields are rejected so typos do not go unnoticed.
func readInput(path string, stdin io.Reader, v any) error {
	var r io.Reader
	if path == "-" {
		r = stdin
		if r == nil {
			r = os.Stdin
		}
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()
		r = f
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse input: %w", err)
	}
	return nil
}

// setIf overwrites dst when the flag value is set.
func setIf[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}
