package lff

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Coordinates is a leaf location from the tab-separated coordinates file.
type Coordinates struct {
	Longitude float64
	Latitude  float64
}

// ParseCoordinatesFile reads a tab-separated (code, longitude, latitude)
// file into a code-keyed map.
func ParseCoordinatesFile(path string) (map[string]Coordinates, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening coordinates file: %w", err)
	}
	defer f.Close()
	return ParseCoordinates(f, path)
}

// ParseCoordinates parses the coordinate rows from r.
func ParseCoordinates(r io.Reader, name string) (map[string]Coordinates, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1

	coords := map[string]Coordinates{}
	lineno := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return coords, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		lineno++
		if len(row) < 3 {
			return nil, &ParseError{File: name, Line: lineno, Message: fmt.Sprintf("expected 3 columns, got %d", len(row))}
		}
		lon, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, &ParseError{File: name, Line: lineno, Message: fmt.Sprintf("bad longitude %q", row[1])}
		}
		lat, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, &ParseError{File: name, Line: lineno, Message: fmt.Sprintf("bad latitude %q", row[2])}
		}
		coords[row[0]] = Coordinates{Longitude: lon, Latitude: lat}
	}
}
