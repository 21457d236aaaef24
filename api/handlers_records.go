package api

import (
	"errors"
	"fmt"
	"net/http"

	"kecantiere/config"
	"kecantiere/db"
	"kecantiere/models"
	"kecantiere/utils"

	"github.com/gin-gonic/gin"
)

// respondStoreError maps the store's error kinds onto HTTP statuses. The
// boundary layer owns this mapping; the stores only ever return the
// sentinels or an I/O failure.
func respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		utils.GinNotFound(c, "Not found")
	case errors.Is(err, db.ErrValidation):
		utils.GinBadRequest(c, err.Error())
	default:
		utils.GinInternalServerError(c, err.Error())
	}
}

// bindRecord reads the request body into a schemaless record.
func bindRecord(c *gin.Context) (models.Record, bool) {
	var rec models.Record
	if err := c.BindJSON(&rec); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return nil, false
	}
	return rec, true
}

// --- Workers (operai) ---

func ListOperaiHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	listCollection(c, store, db.CollOperai, nil)
}

func CreateOperaioHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	createInCollection(c, store, db.CollOperai)
}

func UpdateOperaioHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	updateInCollection(c, store, db.CollOperai)
}

// DeleteOperaioHandler removes a worker. The store also drops every
// attendance record referencing the worker; uploaded documents are NOT
// removed here — callers that want that chain the documents route.
func DeleteOperaioHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	deleteFromCollection(c, store, db.CollOperai)
}

// --- Sites (cantieri) ---

func ListCantieriHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	listCollection(c, store, db.CollCantieri, nil)
}

func CreateCantiereHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	createInCollection(c, store, db.CollCantieri)
}

func UpdateCantiereHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	updateInCollection(c, store, db.CollCantieri)
}

// --- Attendance (giornate) ---

// ListGiornateHandler lists attendance records, optionally filtered by exact
// date and/or site id.
func ListGiornateHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	filters := map[string]string{}
	if v := c.Query("data"); v != "" {
		filters["data"] = v
	}
	if v := c.Query("cantiere"); v != "" {
		filters["cantiere"] = v
	}
	listCollection(c, store, db.CollGiornate, filters)
}

// AttendanceBatchRequest is the body of an attendance submission: the whole
// set of presence rows for one date at one site.
type AttendanceBatchRequest struct {
	Data     string          `json:"data" binding:"required"`
	Cantiere string          `json:"cantiere" binding:"required"`
	Presenze []models.Record `json:"presenze" binding:"required"`
}

// CreateGiornateHandler replaces the attendance set for the submitted
// (date, site) pair with the submitted rows.
func CreateGiornateHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	var req AttendanceBatchRequest
	if err := c.BindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	count, err := store.CreateAttendanceBatch(req.Data, req.Cantiere, req.Presenze)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": count})
}

// --- Diary (diari) ---

// ListDiariHandler lists diary entries, optionally filtered by site. Photo
// blobs are redacted to placeholders: the list view only needs to know how
// many there are, and entries can embed megabytes of encoded images.
func ListDiariHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	filters := map[string]string{}
	if v := c.Query("cantiere"); v != "" {
		filters["cantiere"] = v
	}

	entries, err := store.List(db.CollDiari, filters)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	redacted := make([]models.Record, 0, len(entries))
	for _, entry := range entries {
		out := entry.Clone()
		placeholders := []any{}
		if photos, ok := entry["foto"].([]any); ok {
			for range photos {
				placeholders = append(placeholders, "[foto]")
			}
		}
		out["foto"] = placeholders
		redacted = append(redacted, out)
	}
	c.JSON(http.StatusOK, redacted)
}

// GetDiarioHandler returns a single diary entry with its full photo set.
func GetDiarioHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	entry, err := store.Get(db.CollDiari, c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func CreateDiarioHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	rec, ok := bindRecord(c)
	if !ok {
		return
	}

	created, err := store.Create(db.CollDiari, rec)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": created.ID()})
}

func DeleteDiarioHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	deleteFromCollection(c, store, db.CollDiari)
}

// --- Issue reports (segnalazioni) ---

func ListSegnalazioniHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	listCollection(c, store, db.CollSegnalazioni, nil)
}

func CreateSegnalazioneHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	createInCollection(c, store, db.CollSegnalazioni)
}

func DeleteSegnalazioneHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	deleteFromCollection(c, store, db.CollSegnalazioni)
}

// --- Recordings (registrazioni) ---

func ListRegistrazioniHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	listCollection(c, store, db.CollRegistrazioni, nil)
}

func CreateRegistrazioneHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	createInCollection(c, store, db.CollRegistrazioni)
}

func DeleteRegistrazioneHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	deleteFromCollection(c, store, db.CollRegistrazioni)
}

// --- Shared collection plumbing ---

func listCollection(c *gin.Context, store *db.Store, name string, filters map[string]string) {
	records, err := store.List(name, filters)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func createInCollection(c *gin.Context, store *db.Store, name string) {
	rec, ok := bindRecord(c)
	if !ok {
		return
	}

	created, err := store.Create(name, rec)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func updateInCollection(c *gin.Context, store *db.Store, name string) {
	rec, ok := bindRecord(c)
	if !ok {
		return
	}

	updated, err := store.Update(name, c.Param("id"), rec)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func deleteFromCollection(c *gin.Context, store *db.Store, name string) {
	if err := store.Delete(name, c.Param("id")); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
