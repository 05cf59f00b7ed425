package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Invalid characters for folder and file names
var invalidCharacters = []rune{'/', '\\', ':', '*', '?', '"', '<', '>', '|'}

// SanitizeName makes text safe to use as a folder name. Each invalid
// character becomes its code point padded with spaces, so distinct
// titles stay distinct after sanitization.
func SanitizeName(text string) string {
	var b strings.Builder
	for _, r := range text {
		invalid := false
		for _, c := range invalidCharacters {
			if r == c {
				invalid = true
				break
			}
		}
		if invalid {
			b.WriteString(" " + strconv.Itoa(int(r)) + " ")
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tree is the on-disk mirror of the catalog. The engine is its sole
// writer. All media lands via the staging directory and is renamed
// into place only after the corresponding catalog row is committed.
type Tree struct {
	root string
}

// NewTree opens (creating if needed) the archive root
func NewTree(root string) (*Tree, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".staging"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Tree{root: root}, nil
}

// Root returns the archive root path
func (t *Tree) Root() string {
	return t.root
}

// ProfileDir returns the directory for one profile. The pk suffix keeps
// the folder findable across upstream renames.
func (t *Tree) ProfileDir(username string, pk int64) string {
	return filepath.Join(t.root, fmt.Sprintf("%s@%d", SanitizeName(username), pk))
}

// FindProfileDir locates a profile directory by pk regardless of the
// username half of its name. Returns "" when none exists.
func (t *Tree) FindProfileDir(pk int64) string {
	entries, err := os.ReadDir(t.root)
	if err != nil {
		return ""
	}
	suffix := "@" + strconv.FormatInt(pk, 10)
	for _, entry := range entries {
		if entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			return filepath.Join(t.root, entry.Name())
		}
	}
	return ""
}

// RenameProfileDir moves a profile directory to match a new username
func (t *Tree) RenameProfileDir(oldPath string, username string, pk int64) (string, error) {
	newPath := t.ProfileDir(username, pk)
	if oldPath == newPath {
		return newPath, nil
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return "", fmt.Errorf("failed to rename profile directory: %w", err)
	}
	return newPath, nil
}

// Subfolder names within a profile directory
const (
	ProfilesFolder   = "Profiles"
	PostsFolder      = "Posts"
	TaggedFolder     = "Tagged"
	StoriesFolder    = "Stories"
	HighlightsFolder = "Highlights"
	HistoryFolder    = "History"
)

// EnsureDir creates a directory if it does not exist
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// HighlightFolderName renders the canonical folder name for a highlight
func HighlightFolderName(title string, highlightID int64) string {
	return fmt.Sprintf("%s_%d", SanitizeName(title), highlightID)
}

// FindHighlightFolders returns every folder under Highlights/ whose
// name ends in _{highlightID}. Multiple matches mean stray duplicates
// that the caller should coalesce with MergeFolders.
func FindHighlightFolders(profileDir string, highlightID int64) []string {
	highlightsDir := filepath.Join(profileDir, HighlightsFolder)
	entries, err := os.ReadDir(highlightsDir)
	if err != nil {
		return nil
	}

	suffix := "_" + strconv.FormatInt(highlightID, 10)
	var matches []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			matches = append(matches, filepath.Join(highlightsDir, entry.Name()))
		}
	}
	return matches
}

// HighlightIndex maps highlight ids to their on-disk folders, replacing
// repeated directory scans during a profile run.
type HighlightIndex map[int64]string

// BuildHighlightIndex scans Highlights/ once, coalescing duplicate
// folders for the same id as it goes.
func BuildHighlightIndex(profileDir string) (HighlightIndex, error) {
	index := make(HighlightIndex)

	highlightsDir := filepath.Join(profileDir, HighlightsFolder)
	entries, err := os.ReadDir(highlightsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return index, nil
		}
		return nil, fmt.Errorf("failed to scan highlights: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		sep := strings.LastIndex(name, "_")
		if sep < 0 {
			continue
		}
		id, err := strconv.ParseInt(name[sep+1:], 10, 64)
		if err != nil {
			continue
		}

		path := filepath.Join(highlightsDir, name)
		if existing, ok := index[id]; ok {
			if err := MergeFolders(existing, []string{path}); err != nil {
				return nil, err
			}
			continue
		}
		index[id] = path
	}
	return index, nil
}

// MergeFolders copies all files from the extra folders into dst, then
// deletes the extras. Files already present in dst are kept as-is.
func MergeFolders(dst string, extras []string) error {
	for _, extra := range extras {
		if extra == dst {
			continue
		}
		if err := copyFolderInto(extra, dst); err != nil {
			return err
		}
		if err := os.RemoveAll(extra); err != nil {
			return fmt.Errorf("failed to remove merged folder: %w", err)
		}
	}
	return nil
}

// copyFolderInto copies src's contents into dst recursively
func copyFolderInto(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to read folder: %w", err)
	}
	if err := EnsureDir(dst); err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := copyFolderInto(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if _, err := os.Stat(dstPath); err == nil {
			continue
		}
		if err := CopyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

// CopyFile copies a single file, never moving the source
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	_, err = io.Copy(out, in)
	closeErr := out.Close()
	if err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if closeErr != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to close destination file: %w", closeErr)
	}
	return nil
}

// ThumbnailName returns the thumbnail file name for a media base name
func ThumbnailName(base string) string {
	return base + "_thumbnail.png"
}

// MediaPair returns the media file and thumbnail for a base name within
// dir. Only exact base matches count: "42.mp4" and "42_thumbnail.png"
// belong to base "42"; "421.jpg" does not.
func MediaPair(dir, base string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == ThumbnailName(base) || strings.TrimSuffix(name, filepath.Ext(name)) == base {
			files = append(files, filepath.Join(dir, name))
		}
	}
	return files
}

// FindByPrefix returns files in dir whose name starts with prefix
// followed by a dot ("Profile.*" style lookups) or prefix itself
// followed by "_thumbnail".
func FindByPrefix(dir, prefix string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, prefix+".") || strings.HasPrefix(name, prefix+"_thumbnail") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	return files
}

// StagePath returns a fresh path in the staging directory for a
// download with the given extension (dot included).
func (t *Tree) StagePath(ext string) string {
	return filepath.Join(t.root, ".staging", uuid.New().String()+ext)
}

// Promote renames a staged file into its final place
func (t *Tree) Promote(staged, final string) error {
	if err := os.Rename(staged, final); err != nil {
		return fmt.Errorf("failed to promote staged file: %w", err)
	}
	return nil
}

// Discard removes a staged file, ignoring already-gone files
func (t *Tree) Discard(staged string) {
	if staged == "" {
		return
	}
	if err := os.Remove(staged); err != nil && !os.IsNotExist(err) {
		// best effort; the staging dir is swept on the next run
		_ = err
	}
}

// SweepStaging removes leftovers from crashed runs
func (t *Tree) SweepStaging() error {
	stagingDir := filepath.Join(t.root, ".staging")
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return fmt.Errorf("failed to read staging directory: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(stagingDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to sweep staging: %w", err)
		}
	}
	return nil
}

// MoveProfileToHistory moves the current Profile* files into
// Profiles/History/{historyID}, clearing the way for a new avatar.
// Profile.jpg becomes {historyID}.jpg, Profile_thumbnail.png becomes
// {historyID}_thumbnail.png.
func MoveProfileToHistory(profileDir string, historyID int64) error {
	profilesDir := filepath.Join(profileDir, ProfilesFolder)
	files := FindByPrefix(profilesDir, "Profile")
	if len(files) == 0 {
		return nil
	}

	historyDir := filepath.Join(profilesDir, HistoryFolder)
	if err := EnsureDir(historyDir); err != nil {
		return err
	}

	for _, file := range files {
		name := filepath.Base(file)
		newName := strconv.FormatInt(historyID, 10) + strings.TrimPrefix(name, "Profile")
		if err := os.Rename(file, filepath.Join(historyDir, newName)); err != nil {
			return fmt.Errorf("failed to move profile file to history: %w", err)
		}
	}
	return nil
}

// RemoveProfileFiles deletes the current Profile* files. Used as
// best-effort cleanup when a profile sync fails mid-way.
func RemoveProfileFiles(profileDir string) {
	profilesDir := filepath.Join(profileDir, ProfilesFolder)
	for _, file := range FindByPrefix(profilesDir, "Profile") {
		os.Remove(file)
	}
}
