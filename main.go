package main

import (
	"fmt"
	"log"
	"net/http"

	"kecantiere/api"
	"kecantiere/config"
	"kecantiere/db"
	"kecantiere/filestore"
	"kecantiere/models"
	"kecantiere/utils"
)

// defaultAccounts seeds the users file on first run, matching the accounts
// historical installations started with.
func defaultAccounts() []models.Account {
	return []models.Account{
		{Username: "admin", Password: utils.LegacyDigest("admin123"), Role: "admin"},
		{Username: "cantiere", Password: utils.LegacyDigest("cantiere"), Role: "user"},
	}
}

func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("CRITICAL: Failed to load configuration: %v", err)
	}

	// --- Stores ---
	store := db.NewStore(cfg, defaultAccounts())
	docs := filestore.NewStore(cfg.UploadsDir)

	// --- Router ---
	router := api.SetupRouter(store, docs, cfg)

	// --- Start Server ---
	listenAddr := fmt.Sprintf("%s:%s", cfg.ListenAddress, cfg.ListenPort)
	log.Printf("INFO: KE·CANTIERE listening on %s", listenAddr)

	server := &http.Server{
		Addr:    listenAddr,
		Handler: router,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("CRITICAL: Server failed to start: %v", err)
	}
}
