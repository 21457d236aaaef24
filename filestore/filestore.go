// Package filestore is the filesystem-backed document store: one directory
// per worker under <uploads>/documenti, one file per uploaded document. The
// physical filename is "<upload unix millis>_<sanitized original name>"; the
// display name shown to users is the physical name with the prefix stripped.
package filestore

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"kecantiere/db"
	"kecantiere/models"
)

// MaxUploadSize is the hard ceiling for a single uploaded document.
const MaxUploadSize = 20 << 20 // 20 MiB

// allowedMimeTypes is the upload allow-list: PDF, the three common image
// formats, and legacy/modern Word documents.
var allowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// unsafeChars matches every character that may not appear in a stored
// filename. Letters (including accented Latin), digits, dot, underscore,
// dash, parentheses and spaces survive; everything else becomes an
// underscore, so path separators and control characters can never reach the
// filesystem.
var unsafeChars = regexp.MustCompile(`[^0-9A-Za-zÀ-ÖØ-öø-ÿ._() -]`)

// timestampPrefix matches the upload-timestamp prefix of a physical name.
var timestampPrefix = regexp.MustCompile(`^(\d+)_`)

// Store is the per-worker document store rooted at <uploadsDir>/documenti.
// Operations on different workers never contend; within one worker's
// directory, upload/rename/delete/list are serialized so a rename cannot
// race a concurrent listing.
type Store struct {
	root string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // keyed by worker ID
}

// NewStore creates a document store under uploadsDir.
func NewStore(uploadsDir string) *Store {
	return &Store{
		root:  filepath.Join(uploadsDir, "documenti"),
		locks: make(map[string]*sync.Mutex),
	}
}

// Root returns the directory all worker document folders live under.
func (s *Store) Root() string {
	return s.root
}

// List enumerates a worker's documents, newest upload first. A worker with
// no directory yet simply has no documents.
func (s *Store) List(workerID string) ([]models.DocumentMeta, error) {
	if err := checkSegment(workerID); err != nil {
		return nil, err
	}

	lock := s.workerLock(workerID)
	lock.Lock()
	defer lock.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.root, workerID))
	if err != nil {
		if os.IsNotExist(err) {
			return []models.DocumentMeta{}, nil
		}
		return nil, fmt.Errorf("failed to read document directory for worker '%s': %w", workerID, err)
	}

	docs := make([]models.DocumentMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			log.Printf("WARN: Skipping unreadable document '%s' for worker '%s': %v", entry.Name(), workerID, err)
			continue
		}
		docs = append(docs, models.DocumentMeta{
			Name:        entry.Name(),
			DisplayName: displayName(entry.Name()),
			Size:        info.Size(),
			UploadedAt:  uploadTime(entry.Name(), info.ModTime()).Format(time.RFC3339),
		})
	}

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UploadedAt != docs[j].UploadedAt {
			return docs[i].UploadedAt > docs[j].UploadedAt
		}
		return docs[i].Name > docs[j].Name
	})

	return docs, nil
}

// Store validates, sanitizes and writes a new document for the worker,
// creating the worker's directory on first upload. The physical name is the
// upload timestamp in unix milliseconds joined to the sanitized original
// name; two uploads in the same millisecond with the same name would collide,
// which is accepted at realistic request rates.
func (s *Store) Store(workerID, originalName string, data []byte, mimeType string) (models.DocumentMeta, error) {
	if err := checkSegment(workerID); err != nil {
		return models.DocumentMeta{}, err
	}
	if len(data) > MaxUploadSize {
		return models.DocumentMeta{}, fmt.Errorf("%w: file exceeds the %d byte limit", db.ErrValidation, MaxUploadSize)
	}
	if !allowedMimeTypes[normalizeMime(mimeType)] {
		return models.DocumentMeta{}, fmt.Errorf("%w: file type '%s' is not allowed", db.ErrValidation, mimeType)
	}

	lock := s.workerLock(workerID)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Join(s.root, workerID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return models.DocumentMeta{}, fmt.Errorf("failed to create document directory for worker '%s': %w", workerID, err)
	}

	now := time.Now()
	physical := fmt.Sprintf("%d_%s", now.UnixMilli(), SanitizeName(originalName))
	if err := os.WriteFile(filepath.Join(dir, physical), data, 0644); err != nil {
		return models.DocumentMeta{}, fmt.Errorf("failed to write document '%s': %w", physical, err)
	}

	log.Printf("INFO: Stored document '%s' for worker '%s' (%d bytes)", physical, workerID, len(data))
	return models.DocumentMeta{
		Name:        physical,
		DisplayName: displayName(physical),
		Size:        int64(len(data)),
		UploadedAt:  now.UTC().Format(time.RFC3339),
	}, nil
}

// Rename gives an existing document a new display name while keeping its
// original upload-timestamp prefix.
func (s *Store) Rename(workerID, physicalName, newDisplayName string) (models.DocumentMeta, error) {
	if err := checkSegment(workerID); err != nil {
		return models.DocumentMeta{}, err
	}
	if err := checkSegment(physicalName); err != nil {
		return models.DocumentMeta{}, err
	}

	lock := s.workerLock(workerID)
	lock.Lock()
	defer lock.Unlock()

	oldPath := filepath.Join(s.root, workerID, physicalName)
	info, err := os.Stat(oldPath)
	if err != nil {
		if os.IsNotExist(err) {
			return models.DocumentMeta{}, fmt.Errorf("%w: document '%s'", db.ErrNotFound, physicalName)
		}
		return models.DocumentMeta{}, fmt.Errorf("failed to stat document '%s': %w", physicalName, err)
	}

	millis := info.ModTime().UnixMilli()
	if m := timestampPrefix.FindStringSubmatch(physicalName); m != nil {
		millis, _ = strconv.ParseInt(m[1], 10, 64)
	}

	newPhysical := fmt.Sprintf("%d_%s", millis, SanitizeName(newDisplayName))
	if err := os.Rename(oldPath, filepath.Join(s.root, workerID, newPhysical)); err != nil {
		return models.DocumentMeta{}, fmt.Errorf("failed to rename document '%s': %w", physicalName, err)
	}

	log.Printf("INFO: Renamed document '%s' to '%s' for worker '%s'", physicalName, newPhysical, workerID)
	return models.DocumentMeta{
		Name:        newPhysical,
		DisplayName: displayName(newPhysical),
		Size:        info.Size(),
		UploadedAt:  time.UnixMilli(millis).UTC().Format(time.RFC3339),
	}, nil
}

// Delete removes a single document. Deleting a name that does not exist
// reports ErrNotFound.
func (s *Store) Delete(workerID, physicalName string) error {
	if err := checkSegment(workerID); err != nil {
		return err
	}
	if err := checkSegment(physicalName); err != nil {
		return err
	}

	lock := s.workerLock(workerID)
	lock.Lock()
	defer lock.Unlock()

	err := os.Remove(filepath.Join(s.root, workerID, physicalName))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: document '%s'", db.ErrNotFound, physicalName)
		}
		return fmt.Errorf("failed to delete document '%s': %w", physicalName, err)
	}

	log.Printf("INFO: Deleted document '%s' for worker '%s'", physicalName, workerID)
	return nil
}

// DeleteAll removes a worker's entire document directory. Record deletion
// does not trigger this: the caller decides whether worker removal should
// also drop the files.
func (s *Store) DeleteAll(workerID string) error {
	if err := checkSegment(workerID); err != nil {
		return err
	}

	lock := s.workerLock(workerID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(filepath.Join(s.root, workerID)); err != nil {
		return fmt.Errorf("failed to delete documents for worker '%s': %w", workerID, err)
	}

	log.Printf("INFO: Deleted all documents for worker '%s'", workerID)
	return nil
}

// Path resolves the on-disk location of a stored document for byte-for-byte
// retrieval. The store never transforms content on read.
func (s *Store) Path(workerID, physicalName string) (string, error) {
	if err := checkSegment(workerID); err != nil {
		return "", err
	}
	if err := checkSegment(physicalName); err != nil {
		return "", err
	}
	return filepath.Join(s.root, workerID, physicalName), nil
}

// SanitizeName maps an arbitrary user-supplied filename onto the safe
// character set. The result contains no path separators and never escapes
// the worker's directory.
func SanitizeName(name string) string {
	sanitized := unsafeChars.ReplaceAllString(name, "_")
	if strings.Trim(sanitized, "_ ") == "" {
		return "documento"
	}
	return sanitized
}

// workerLock returns the mutex guarding one worker's directory, creating it
// on first use.
func (s *Store) workerLock(workerID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[workerID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[workerID] = lock
	}
	return lock
}

// checkSegment rejects identifiers that could change the resolved path:
// empty names, dot navigation, or anything containing a separator.
func checkSegment(segment string) error {
	if segment == "" || segment == "." || segment == ".." ||
		strings.ContainsAny(segment, `/\`) {
		return fmt.Errorf("%w: invalid name '%s'", db.ErrValidation, segment)
	}
	return nil
}

// displayName strips the upload-timestamp prefix from a physical filename.
func displayName(physical string) string {
	return timestampPrefix.ReplaceAllString(physical, "")
}

// uploadTime derives the upload instant from the physical name's prefix,
// falling back to the file's modification time for unprefixed files.
func uploadTime(physical string, modTime time.Time) time.Time {
	if m := timestampPrefix.FindStringSubmatch(physical); m != nil {
		if millis, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return time.UnixMilli(millis).UTC()
		}
	}
	return modTime.UTC()
}

// normalizeMime drops any media-type parameters ("; charset=...") before the
// allow-list check.
func normalizeMime(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i != -1 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
