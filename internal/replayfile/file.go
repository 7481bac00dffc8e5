package replayfile

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vortexreplay/recorder/pkg/core"
)

var gzipMagic = []byte{0x1f, 0x8b}

// WriteFile writes doc to path, gzip-compressed when compress is set or the
// path ends in .gz.
func WriteFile(path string, doc core.Document, compress bool) error {
	data, err := Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode replay: %w", err)
	}
	return WriteRaw(path, data, compress)
}

// ReadFile loads a replay from path. Gzip input is detected from its
// header, not the file name.
func ReadFile(path string) (core.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.Document{}, fmt.Errorf("failed to open replay: %w", err)
	}
	defer f.Close()

	data, err := readAll(f)
	if err != nil {
		return core.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Unmarshal(data)
}

// ReadFileStrict is ReadFile followed by Validate.
func ReadFileStrict(path string) (core.Document, error) {
	data, err := ReadRaw(path)
	if err != nil {
		return core.Document{}, err
	}
	doc, err := LoadStrict(data)
	if err != nil {
		return core.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// ReadRaw returns the decompressed JSON bytes of a replay file.
func ReadRaw(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay: %w", err)
	}
	defer f.Close()
	return readAll(f)
}

func readAll(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err == nil && bytes.Equal(head, gzipMagic) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return io.ReadAll(gz)
	}
	return io.ReadAll(br)
}

// WriteRaw writes already encoded replay JSON to path, gzip-compressed when
// compress is set or the path ends in .gz.
func WriteRaw(path string, data []byte, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gzWriter *gzip.Writer
	if compress || strings.HasSuffix(path, ".gz") {
		gzWriter = gzip.NewWriter(f)
		w = gzWriter
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write replay: %w", err)
	}
	if gzWriter != nil {
		if err := gzWriter.Close(); err != nil {
			return fmt.Errorf("failed to finish gzip stream: %w", err)
		}
	}
	return f.Close()
}

// IsGzip reports whether the file at path starts with a gzip header.
func IsGzip(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 2)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return n == 2 && bytes.Equal(head, gzipMagic), nil
}
