// Package persist provides codec-based file persistence for report documents.
package persist

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

// File extensions for supported codecs.
const (
	jsonExtension = ".json"
	yamlExtension = ".yaml"
	zstdExtension = ".zst"
)

// Default indentation for pretty-printed JSON.
const defaultIndent = "  "

const yamlIndent = 2

const filePerm = 0o644

// Codec defines how state is serialized and deserialized.
type Codec interface {
	// Encode writes the state to the writer.
	Encode(w io.Writer, state any) error
	// Decode reads the state from the reader.
	Decode(r io.Reader, state any) error
	// Extension returns the file extension for this codec (e.g., ".json", ".yaml").
	Extension() string
}

// JSONCodec implements Codec using JSON encoding with optional indentation.
type JSONCodec struct {
	// Indent specifies the indentation string. Empty string means compact JSON.
	Indent string
}

// NewJSONCodec creates a JSON codec with pretty-printing (2-space indent).
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// Encode implements Codec.Encode using JSON encoding.
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	encoder := json.NewEncoder(w)
	if c.Indent != "" {
		encoder.SetIndent("", c.Indent)
	}

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using JSON decoding.
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	decoder := json.NewDecoder(r)

	err := decoder.Decode(state)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for JSON files.
func (c *JSONCodec) Extension() string {
	return jsonExtension
}

// YAMLCodec implements Codec using yaml.v3.
type YAMLCodec struct{}

// NewYAMLCodec creates a YAML codec.
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Encode implements Codec.Encode using YAML encoding.
func (c *YAMLCodec) Encode(w io.Writer, state any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(yamlIndent)

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using YAML decoding.
func (c *YAMLCodec) Decode(r io.Reader, state any) error {
	err := yaml.NewDecoder(r).Decode(state)
	if err != nil {
		return fmt.Errorf("yaml decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for YAML files.
func (c *YAMLCodec) Extension() string {
	return yamlExtension
}

// ZstdCodec compresses the output of an inner codec with zstd.
type ZstdCodec struct {
	Inner Codec
}

// NewZstdCodec wraps inner with zstd compression.
func NewZstdCodec(inner Codec) *ZstdCodec {
	return &ZstdCodec{Inner: inner}
}

// Encode implements Codec.Encode.
func (c *ZstdCodec) Encode(w io.Writer, state any) error {
	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}

	err = c.Inner.Encode(encoder, state)
	if err != nil {
		encoder.Close()

		return err
	}

	err = encoder.Close()
	if err != nil {
		return fmt.Errorf("zstd close: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode.
func (c *ZstdCodec) Decode(r io.Reader, state any) error {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()

	return c.Inner.Decode(decoder, state)
}

// Extension implements Codec.Extension, e.g. ".json.zst".
func (c *ZstdCodec) Extension() string {
	return c.Inner.Extension() + zstdExtension
}

// WriteAtomic writes a file through a temporary sibling and renames it into
// place, so readers never observe a partially written file.
func WriteAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	err = tmp.Chmod(filePerm)
	if err != nil {
		tmp.Close()

		return fmt.Errorf("chmod temp file: %w", err)
	}

	err = write(tmp)
	if err != nil {
		tmp.Close()

		return err
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	err = os.Rename(tmpPath, path)
	if err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}

	return nil
}

// SaveState saves the given state to a file in the specified directory and
// returns its path. The filename is the basename plus the codec's extension.
func SaveState(dir, basename string, codec Codec, state any) (string, error) {
	path := filepath.Join(dir, basename+codec.Extension())

	err := WriteAtomic(path, func(w io.Writer) error {
		encErr := codec.Encode(w, state)
		if encErr != nil {
			return fmt.Errorf("encode state: %w", encErr)
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return path, nil
}

// LoadState loads state from a file in the specified directory.
// The filename is constructed from the basename and the codec's extension.
// The state parameter must be a pointer to the target struct.
func LoadState(dir, basename string, codec Codec, state any) error {
	path := filepath.Join(dir, basename+codec.Extension())

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	err = codec.Decode(file, state)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	return nil
}
