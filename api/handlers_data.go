package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"kecantiere/config"
	"kecantiere/db"
	"kecantiere/models"
	"kecantiere/utils"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// GetDataHandler returns the full primary document.
func GetDataHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	c.JSON(http.StatusOK, store.Load())
}

// ReplaceDataHandler overwrites the full primary document. The raw payload
// is probed with gjson before it is trusted enough to unmarshal: it must be
// valid JSON and carry at least one of the anchor collections, so an empty
// or malformed body cannot wipe the store.
func ReplaceDataHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	body, err := c.GetRawData()
	if err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}

	if !gjson.ValidBytes(body) ||
		(!gjson.GetBytes(body, db.CollOperai).Exists() && !gjson.GetBytes(body, db.CollGiornate).Exists()) {
		utils.GinBadRequest(c, "Dati non validi")
		return
	}

	var doc models.Database
	if err := json.Unmarshal(body, &doc); err != nil {
		utils.GinBadRequest(c, "Dati non validi")
		return
	}

	if err := store.Replace(doc); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetUsersHandler returns the full account list.
func GetUsersHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	c.JSON(http.StatusOK, store.LoadUsers())
}

// ReplaceUsersHandler overwrites the users file. An empty or non-array
// payload is rejected.
func ReplaceUsersHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	var users []models.Account
	if err := c.BindJSON(&users); err != nil || len(users) == 0 {
		utils.GinBadRequest(c, "Lista non valida")
		return
	}

	if err := store.SaveUsers(users); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
