package filesaver

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestFileSaver_SaveJSON(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	saver, err := NewFileSaver(filepath.Join(dir, "clean", "trip_updates"), "2025-11-15T23-23")
	is.NoErr(err)

	path, err := saver.SaveJSON("trip_updates", map[string]string{"trip_id": "14731511"})
	is.NoErr(err)
	is.True(strings.HasSuffix(path, "trip_updates_2025-11-15T23-23.json"))

	contents, err := os.ReadFile(path)
	is.NoErr(err)
	var decoded map[string]string
	is.NoErr(json.Unmarshal(contents, &decoded))
	is.Equal("14731511", decoded["trip_id"])
}

func TestFileSaver_OpenCSV(t *testing.T) {
	is := is.New(t)
	saver, err := NewFileSaver(t.TempDir(), "2025-11-15T23-23")
	is.NoErr(err)

	csvFile, err := saver.OpenCSV("position_updates", []string{"route_number", "vehicle_id"})
	is.NoErr(err)
	is.NoErr(csvFile.Append([]string{"6836", "8137"}))
	is.NoErr(csvFile.Append([]string{"", "8138"}))
	is.NoErr(csvFile.Close())

	contents, err := os.ReadFile(csvFile.Path)
	is.NoErr(err)
	lines := strings.Split(strings.TrimSpace(string(contents)), "\n")
	is.Equal(3, len(lines))
	is.Equal("route_number,vehicle_id", lines[0])
	is.Equal("6836,8137", lines[1])
	is.Equal(",8138", lines[2])
}

func TestFileSaver_SaveRaw(t *testing.T) {
	is := is.New(t)
	saver, err := NewFileSaver(t.TempDir(), "")
	is.NoErr(err)
	path, err := saver.SaveRaw("position_updates", "pb", []byte{0x0a, 0x03})
	is.NoErr(err)
	contents, err := os.ReadFile(path)
	is.NoErr(err)
	is.Equal([]byte{0x0a, 0x03}, contents)
}
