// Package analyzer inspects import directories: disc layout, audio and
// artwork inventory, and the search query derived from the directory name.
package analyzer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// discDirPattern matches subdirectories holding one disc of a multi-disc set.
var discDirPattern = regexp.MustCompile(`(?i)(?:cd|disc|disk)\s*\d+`)

var audioExtensions = map[string]struct{}{
	".flac": {}, ".mp3": {}, ".m4a": {}, ".aac": {}, ".ogg": {}, ".opus": {},
	".wav": {}, ".aiff": {}, ".ape": {}, ".wv": {}, ".alac": {}, ".wma": {},
}

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".webp": {},
}

// SkippedDirName is the folder skipped targets are moved into. It is never
// offered as an import target itself.
const SkippedDirName = "skipped"

// Disc is one disc worth of audio inside a target.
type Disc struct {
	// Name is the subdirectory name, or "" for the target root.
	Name       string
	AudioFiles int
	Bytes      int64
}

// Target describes one import directory.
type Target struct {
	Path       string
	Name       string
	MultiDisc  bool
	Discs      []Disc
	AudioFiles int
	Images     []string
	Bytes      int64
}

// TotalTracks returns the audio file count across all discs.
func (t Target) TotalTracks() int {
	return t.AudioFiles
}

// Analyze inspects a directory and classifies its disc structure. Disc
// subdirectories are ordered by name so "CD1" precedes "CD2".
func Analyze(path string) (Target, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Target{}, fmt.Errorf("stat target: %w", err)
	}
	if !info.IsDir() {
		return Target{}, fmt.Errorf("target %q is not a directory", path)
	}

	target := Target{Path: path, Name: filepath.Base(path)}

	entries, err := os.ReadDir(path)
	if err != nil {
		return Target{}, fmt.Errorf("read target: %w", err)
	}

	root := Disc{}
	var discDirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			if discDirPattern.MatchString(entry.Name()) {
				discDirs = append(discDirs, entry.Name())
			}
			continue
		}
		tallyFile(path, entry.Name(), &root, &target)
	}
	sort.Strings(discDirs)

	for _, dir := range discDirs {
		disc := Disc{Name: dir}
		subEntries, err := os.ReadDir(filepath.Join(path, dir))
		if err != nil {
			return Target{}, fmt.Errorf("read disc dir %s: %w", dir, err)
		}
		for _, entry := range subEntries {
			if entry.IsDir() {
				continue
			}
			tallyFile(filepath.Join(path, dir), entry.Name(), &disc, &target)
		}
		if disc.AudioFiles > 0 {
			target.Discs = append(target.Discs, disc)
		}
	}

	target.MultiDisc = len(target.Discs) > 1
	if root.AudioFiles > 0 || len(target.Discs) == 0 {
		target.Discs = append([]Disc{root}, target.Discs...)
	}
	return target, nil
}

func tallyFile(dir, name string, disc *Disc, target *Target) {
	ext := strings.ToLower(filepath.Ext(name))
	full := filepath.Join(dir, name)
	info, err := os.Stat(full)
	var size int64
	if err == nil {
		size = info.Size()
	}
	if _, ok := audioExtensions[ext]; ok {
		disc.AudioFiles++
		disc.Bytes += size
		target.AudioFiles++
		target.Bytes += size
		return
	}
	if _, ok := imageExtensions[ext]; ok {
		target.Images = append(target.Images, full)
		target.Bytes += size
	}
}

// ListTargets returns the import root's subdirectories sorted by most recent
// modification, excluding the skipped folder and dotfiles.
func ListTargets(importRoot string) ([]Target, error) {
	entries, err := os.ReadDir(importRoot)
	if err != nil {
		return nil, fmt.Errorf("read import root: %w", err)
	}

	type stamped struct {
		target Target
		mtime  int64
	}
	var found []stamped
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == SkippedDirName || strings.HasPrefix(name, ".") {
			continue
		}
		target, err := Analyze(filepath.Join(importRoot, name))
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, stamped{target: target, mtime: info.ModTime().UnixNano()})
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].mtime > found[j].mtime
	})

	targets := make([]Target, 0, len(found))
	for _, item := range found {
		targets = append(targets, item.target)
	}
	return targets, nil
}

// bracketPattern removes release-group style annotations like [FLAC] or
// (2024 Remaster) from search queries.
var bracketPattern = regexp.MustCompile(`[\[({][^\])}]*[\])}]`)

// SearchQuery derives a metadata-site search string from a directory name.
func SearchQuery(path string) string {
	name := filepath.Base(path)
	name = bracketPattern.ReplaceAllString(name, " ")
	name = strings.NewReplacer("_", " ", ".", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}
