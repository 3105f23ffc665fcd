// Package filesaver provides support for writing run artifacts to timestamped files
package filesaver

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TimestampLayout is used in artifact file names, one file set per pipeline run
const TimestampLayout = "2006-01-02T15-04"

// FileSaver writes files into a base directory using names of the form
// <source>_<timestamp>.<ext>
type FileSaver struct {
	baseDir   string
	timestamp string
}

// NewFileSaver creates a FileSaver rooted at baseDir, creating the directory if needed.
// An empty timestamp uses the current time
func NewFileSaver(baseDir string, timestamp string) (*FileSaver, error) {
	if timestamp == "" {
		timestamp = time.Now().Format(TimestampLayout)
	}
	if err := os.MkdirAll(baseDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("unable to create directory %s: %w", baseDir, err)
	}
	return &FileSaver{
		baseDir:   baseDir,
		timestamp: timestamp,
	}, nil
}

func (f *FileSaver) fileName(source string, ext string) string {
	return filepath.Join(f.baseDir, fmt.Sprintf("%s_%s.%s", source, f.timestamp, ext))
}

// SaveJSON writes data as indented json to <source>_<timestamp>.json
// returns the path written
func (f *FileSaver) SaveJSON(source string, data interface{}) (string, error) {
	path := f.fileName(source, "json")
	contents, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("unable to marshal %s: %w", source, err)
	}
	if err = os.WriteFile(path, contents, 0644); err != nil {
		return "", fmt.Errorf("unable to write %s: %w", path, err)
	}
	return path, nil
}

// SaveRaw writes raw bytes to <source>_<timestamp>.<ext>
// returns the path written
func (f *FileSaver) SaveRaw(source string, ext string, data []byte) (string, error) {
	path := f.fileName(source, ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("unable to write %s: %w", path, err)
	}
	return path, nil
}

// CSVFile appends records to a single csv file for the lifetime of a run
type CSVFile struct {
	Path   string
	file   *os.File
	writer *csv.Writer
}

// OpenCSV creates <source>_<timestamp>.csv and writes the header row.
// Callers append records and must Close when done
func (f *FileSaver) OpenCSV(source string, header []string) (*CSVFile, error) {
	path := f.fileName(source, "csv")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", path, err)
	}
	writer := csv.NewWriter(file)
	if err = writer.Write(header); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("unable to write header to %s: %w", path, err)
	}
	return &CSVFile{
		Path:   path,
		file:   file,
		writer: writer,
	}, nil
}

// Append writes a single record and flushes it so partial runs still leave usable files
func (c *CSVFile) Append(record []string) error {
	if err := c.writer.Write(record); err != nil {
		return err
	}
	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes pending records and closes the underlying file
func (c *CSVFile) Close() error {
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		_ = c.file.Close()
		return err
	}
	return c.file.Close()
}
