package db

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"kecantiere/config"
	"kecantiere/models"
	"kecantiere/utils"
)

// Collection names. These double as the key names inside the primary JSON
// document, so they are part of the on-disk format.
const (
	CollOperai        = "operai"
	CollCantieri      = "cantieri"
	CollGiornate      = "giornate"
	CollRegistrazioni = "registrazioni"
	CollSegnalazioni  = "segnalazioni"
	CollDiari         = "diari"
)

// Store is the record store over the primary data file and the users file.
//
// No in-memory state is authoritative: every operation re-reads the backing
// file, and every mutation is a full load-modify-save held under the file's
// mutex so two concurrent writers cannot interleave their read and write
// halves. Read-only operations skip the mutex; saves are atomic (temp file +
// rename) so a concurrent reader always observes a complete document.
type Store struct {
	cfg *config.Config

	mu      sync.Mutex // serializes mutations of the primary data file
	usersMu sync.Mutex // serializes access to the users file

	seedAccounts []models.Account
}

// NewStore creates a record store over the files named in cfg. seedAccounts
// is the account list returned (and written out) when the users file is
// missing or empty; the caller supplies the values.
func NewStore(cfg *config.Config, seedAccounts []models.Account) *Store {
	return &Store{cfg: cfg, seedAccounts: seedAccounts}
}

// Load reads and parses the primary data file. A missing or unparsable file
// yields a fresh document with all six collections empty: on a new install
// the two cases are indistinguishable, so the store fails open rather than
// surfacing an error. The condition is logged so data loss stays observable.
func (s *Store) Load() models.Database {
	var doc models.Database

	fileData, err := os.ReadFile(s.cfg.DataFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("INFO: Data file '%s' not found. Starting with an empty document.", s.cfg.DataFilePath)
		} else {
			log.Printf("WARN: Failed to read data file '%s': %v. Starting with an empty document.", s.cfg.DataFilePath, err)
		}
		doc.Normalize()
		return doc
	}

	if err := json.Unmarshal(fileData, &doc); err != nil {
		log.Printf("WARN: Failed to parse data file '%s': %v. Starting with an empty document.", s.cfg.DataFilePath, err)
		doc = models.Database{}
	}

	doc.Normalize()
	return doc
}

// Save serializes doc and overwrites the primary data file in full.
func (s *Store) Save(doc models.Database) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(doc)
}

// Replace validates an externally supplied document and persists it. A
// payload carrying neither the workers nor the attendance collection is
// rejected: it is far more likely to be a malformed client request than a
// deliberate wipe of the whole store. Missing collections are defaulted to
// empty before writing.
func (s *Store) Replace(doc models.Database) error {
	if doc.Operai == nil && doc.Giornate == nil {
		return fmt.Errorf("%w: document must contain at least one of '%s' or '%s'", ErrValidation, CollOperai, CollGiornate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(doc)
}

// List returns all records of the named collection matching every filter by
// exact (stringified) equality. A nil or empty filter set returns the whole
// collection in insertion order.
func (s *Store) List(name string, filters map[string]string) ([]models.Record, error) {
	doc := s.Load()
	coll, err := collectionOf(&doc, name)
	if err != nil {
		return nil, err
	}

	if len(filters) == 0 {
		return *coll, nil
	}

	matched := make([]models.Record, 0)
	for _, rec := range *coll {
		if matchesFilters(rec, filters) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// Get returns the record with the given id from the named collection.
func (s *Store) Get(name, id string) (models.Record, error) {
	doc := s.Load()
	coll, err := collectionOf(&doc, name)
	if err != nil {
		return nil, err
	}

	if idx := recordIndex(*coll, id); idx != -1 {
		return (*coll)[idx], nil
	}
	return nil, fmt.Errorf("%w: %s '%s'", ErrNotFound, name, id)
}

// Create assigns a fresh identifier using the collection's scheme, applies
// the collection's creation defaults, appends the record and persists.
// Client-supplied "id" fields are always discarded.
func (s *Store) Create(name string, fields models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.Load()
	coll, err := collectionOf(&doc, name)
	if err != nil {
		return nil, err
	}

	rec := fields.Clone()
	rec["id"] = s.uniqueID(name, *coll)

	switch name {
	case CollSegnalazioni:
		rec["aperta"] = true
	case CollDiari:
		rec["ts"] = time.Now().UTC().Format(time.RFC3339)
	}

	*coll = append(*coll, rec)
	if err := s.persist(doc); err != nil {
		return nil, err
	}

	log.Printf("INFO: Created %s record %s", name, rec.ID())
	return rec, nil
}

// Update shallow-merges fields over the record with the given id and
// persists. The identifier itself is protected from overwrite. Returns
// ErrNotFound if the id is absent from the collection.
func (s *Store) Update(name, id string, fields models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.Load()
	coll, err := collectionOf(&doc, name)
	if err != nil {
		return nil, err
	}

	idx := recordIndex(*coll, id)
	if idx == -1 {
		return nil, fmt.Errorf("%w: %s '%s'", ErrNotFound, name, id)
	}

	merged := (*coll)[idx].Clone()
	for k, v := range fields {
		if k == "id" {
			continue
		}
		merged[k] = v
	}

	(*coll)[idx] = merged
	if err := s.persist(doc); err != nil {
		return nil, err
	}

	log.Printf("INFO: Updated %s record %s", name, id)
	return merged, nil
}

// Delete removes the record with the given id from the named collection.
// Deleting a worker also removes every attendance record referencing it; no
// other collection is touched. Deleting an absent id is not an error.
func (s *Store) Delete(name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.Load()
	coll, err := collectionOf(&doc, name)
	if err != nil {
		return err
	}

	kept := make([]models.Record, 0, len(*coll))
	for _, rec := range *coll {
		if rec.ID() != id {
			kept = append(kept, rec)
		}
	}
	*coll = kept

	if name == CollOperai {
		giornate := make([]models.Record, 0, len(doc.Giornate))
		for _, g := range doc.Giornate {
			if op, _ := g["operaio"].(string); op != id {
				giornate = append(giornate, g)
			}
		}
		doc.Giornate = giornate
	}

	if err := s.persist(doc); err != nil {
		return err
	}

	log.Printf("INFO: Deleted %s record %s", name, id)
	return nil
}

// CreateAttendanceBatch replaces the full attendance set for one
// (date, site) pair: every existing giornate record for that pair is
// removed and the submitted entries are appended in their place. Records
// for other pairs are untouched. Returns the number of records created.
func (s *Store) CreateAttendanceBatch(date, site string, entries []models.Record) (int, error) {
	if date == "" || site == "" {
		return 0, fmt.Errorf("%w: attendance batch requires both a date and a site", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.Load()

	kept := make([]models.Record, 0, len(doc.Giornate))
	for _, g := range doc.Giornate {
		d, _ := g["data"].(string)
		c, _ := g["cantiere"].(string)
		if !(d == date && c == site) {
			kept = append(kept, g)
		}
	}
	doc.Giornate = kept

	for _, entry := range entries {
		rec := models.Record{
			"id":           s.uniqueID(CollGiornate, doc.Giornate),
			"data":         date,
			"cantiere":     site,
			"operaio":      entry["operaio"],
			"presente":     true,
			"ore":          8.0,
			"straordinari": 0.0,
			"motivoTipo":   "",
			"motivoNote":   "",
			"note":         "",
		}
		if v, ok := entry["presente"].(bool); ok {
			rec["presente"] = v
		}
		if v, ok := entry["ore"]; ok && v != nil {
			rec["ore"] = v
		}
		if v, ok := entry["straordinari"]; ok && v != nil {
			rec["straordinari"] = v
		}
		for _, k := range []string{"motivoTipo", "motivoNote", "note"} {
			if v, ok := entry[k].(string); ok {
				rec[k] = v
			}
		}
		doc.Giornate = append(doc.Giornate, rec)
	}

	if err := s.persist(doc); err != nil {
		return 0, err
	}

	log.Printf("INFO: Replaced attendance for date=%s site=%s with %d records", date, site, len(entries))
	return len(entries), nil
}

// --- Internals ---

// persist writes doc to the data file atomically: marshal, write to a temp
// file, optionally rotate the previous file to .bak, then rename into place.
// Callers must hold s.mu.
func (s *Store) persist(doc models.Database) error {
	doc.Normalize()
	jsonData, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		log.Printf("ERROR: Failed to marshal document: %v", err)
		return err
	}
	return writeFileAtomic(s.cfg.DataFilePath, jsonData, s.cfg.EnableBackup)
}

// writeFileAtomic writes data to path via a temporary file and rename so a
// reader never observes a partial or absent file. When backup is set, the
// previous contents are copied to path.bak; the live file itself is never
// moved aside, so a lock-free reader always finds a complete document, and a
// failed rename leaves the previous file intact at path.
func writeFileAtomic(path string, data []byte, backup bool) error {
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		log.Printf("ERROR: Failed to write temporary file '%s': %v", tempPath, err)
		return err
	}

	if backup {
		prev, err := os.ReadFile(path)
		if err == nil {
			if err := os.WriteFile(path+".bak", prev, 0644); err != nil {
				log.Printf("WARN: Failed to write backup '%s': %v. Proceeding with save.", path+".bak", err)
			}
		} else if !os.IsNotExist(err) {
			log.Printf("WARN: Error reading '%s' before backup: %v", path, err)
		}
	}

	if err := os.Rename(tempPath, path); err != nil {
		log.Printf("ERROR: Failed to rename temporary file '%s' to '%s': %v", tempPath, path, err)
		_ = os.Remove(tempPath)
		return err
	}

	return nil
}

// collectionOf resolves a collection name to the matching slice of doc.
func collectionOf(doc *models.Database, name string) (*[]models.Record, error) {
	switch name {
	case CollOperai:
		return &doc.Operai, nil
	case CollCantieri:
		return &doc.Cantieri, nil
	case CollGiornate:
		return &doc.Giornate, nil
	case CollRegistrazioni:
		return &doc.Registrazioni, nil
	case CollSegnalazioni:
		return &doc.Segnalazioni, nil
	case CollDiari:
		return &doc.Diari, nil
	}
	return nil, fmt.Errorf("%w: unknown collection '%s'", ErrValidation, name)
}

// recordIndex returns the position of the record with the given id, or -1.
func recordIndex(coll []models.Record, id string) int {
	for i, rec := range coll {
		if rec.ID() == id {
			return i
		}
	}
	return -1
}

// matchesFilters reports whether every filter key equals the record's value
// when both are rendered as strings.
func matchesFilters(rec models.Record, filters map[string]string) bool {
	for k, want := range filters {
		v, ok := rec[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", v) != want {
			return false
		}
	}
	return true
}

// uniqueID generates an identifier for the named collection and retries
// until it does not collide with an existing record. Identifier formats:
//
//	operai        w<8 hex>
//	cantieri      c<unix millis>
//	giornate      g<unix millis><4 hex>
//	diari         d<unix millis>
//	segnalazioni  s<unix millis>
//	registrazioni r<unix millis>
//
// For the purely timestamp-based schemes a retry bumps the millisecond value
// so two creations inside the same millisecond still get distinct ids.
func (s *Store) uniqueID(name string, coll []models.Record) string {
	for bump := int64(0); ; bump++ {
		id := newID(name, bump)
		if recordIndex(coll, id) == -1 {
			return id
		}
	}
}

func newID(name string, bump int64) string {
	millis := time.Now().UnixMilli() + bump
	switch name {
	case CollOperai:
		return "w" + utils.GenerateDashlessUUID()[:8]
	case CollCantieri:
		return fmt.Sprintf("c%d", millis)
	case CollGiornate:
		return fmt.Sprintf("g%d%s", millis, utils.GenerateDashlessUUID()[:4])
	case CollDiari:
		return fmt.Sprintf("d%d", millis)
	case CollSegnalazioni:
		return fmt.Sprintf("s%d", millis)
	case CollRegistrazioni:
		return fmt.Sprintf("r%d", millis)
	}
	return utils.GenerateDashlessUUID()
}
