package api

import (
	"fmt"
	"io"
	"net/http"

	"kecantiere/config"
	"kecantiere/filestore"
	"kecantiere/utils"

	"github.com/gin-gonic/gin"
)

// ListDocumentsHandler lists a worker's uploaded documents, newest first.
func ListDocumentsHandler(c *gin.Context, docs *filestore.Store, cfg *config.Config) {
	list, err := docs.List(c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// UploadDocumentHandler stores one multipart file (field "file") in the
// worker's document directory.
func UploadDocumentHandler(c *gin.Context, docs *filestore.Store, cfg *config.Config) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Missing 'file' field: %v", err))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.GinInternalServerError(c, fmt.Sprintf("Failed to open upload: %v", err))
		return
	}
	defer file.Close()

	// One byte past the ceiling is enough to detect oversize without
	// buffering an unbounded body.
	data, err := io.ReadAll(io.LimitReader(file, filestore.MaxUploadSize+1))
	if err != nil {
		utils.GinInternalServerError(c, fmt.Sprintf("Failed to read upload: %v", err))
		return
	}

	meta, err := docs.Store(c.Param("id"), fileHeader.Filename, data, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

// RenameDocumentRequest carries the new display name for a document.
type RenameDocumentRequest struct {
	Nome string `json:"nome" binding:"required"`
}

// RenameDocumentHandler renames a document in place, keeping its upload
// timestamp prefix.
func RenameDocumentHandler(c *gin.Context, docs *filestore.Store, cfg *config.Config) {
	var req RenameDocumentRequest
	if err := c.BindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	meta, err := docs.Rename(c.Param("id"), c.Param("nome"), req.Nome)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

// DeleteDocumentHandler removes a single document.
func DeleteDocumentHandler(c *gin.Context, docs *filestore.Store, cfg *config.Config) {
	if err := docs.Delete(c.Param("id"), c.Param("nome")); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteAllDocumentsHandler removes a worker's whole document directory.
// This is the explicit companion to worker deletion: removing the worker
// record never removes files on its own.
func DeleteAllDocumentsHandler(c *gin.Context, docs *filestore.Store, cfg *config.Config) {
	if err := docs.DeleteAll(c.Param("id")); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
