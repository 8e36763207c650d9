package identity

import (
	"embed"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

//go:embed data/*
var dataFiles embed.FS

type city struct {
	Name       string
	Department string
}

type lookupTables struct {
	avatars      []string
	adjectives   []string
	jobs         []string
	cities       []city
	orientations []string
}

var tables = mustLoadTables()

// AvatarCount returns the number of avatars a persona can be assigned.
func AvatarCount() int {
	return len(tables.avatars)
}

func mustLoadTables() lookupTables {
	loaded, err := loadTables()
	if err != nil {
		panic(err)
	}
	return loaded
}

func loadTables() (lookupTables, error) {
	var out lookupTables
	var err error

	if out.avatars, err = readLines("data/avatars.txt"); err != nil {
		return out, err
	}
	if out.adjectives, err = readLines("data/adjectives.txt"); err != nil {
		return out, err
	}
	if out.jobs, err = readLines("data/jobs.txt"); err != nil {
		return out, err
	}
	if out.orientations, err = readLines("data/orientations.txt"); err != nil {
		return out, err
	}

	raw, err := dataFiles.ReadFile("data/cities.json")
	if err != nil {
		return out, eris.Wrap(err, "reading cities table")
	}

	var pairs [][2]string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return out, eris.Wrap(err, "decoding cities table")
	}
	if len(pairs) == 0 {
		return out, eris.New("cities table is empty")
	}

	out.cities = make([]city, 0, len(pairs))
	for _, pair := range pairs {
		out.cities = append(out.cities, city{Name: pair[0], Department: pair[1]})
	}

	return out, nil
}

func readLines(path string) ([]string, error) {
	raw, err := dataFiles.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reading table %s", path)
	}

	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lines = append(lines, trimmed)
	}

	if len(lines) == 0 {
		return nil, eris.Errorf("table %s is empty", path)
	}

	return lines, nil
}
