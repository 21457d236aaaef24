package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"kecantiere/config"
	"kecantiere/db"
	"kecantiere/filestore"
	"kecantiere/utils"

	"github.com/gin-gonic/gin"
)

// SetupRouter wires every route onto a gin engine. main and the handler
// tests build their routers through this so the wiring under test is the
// wiring that ships.
func SetupRouter(store *db.Store, docs *filestore.Store, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Login is the only unauthenticated API route.
	router.POST("/api/login", func(c *gin.Context) {
		LoginHandler(c, store, cfg)
	})

	authMiddleware := utils.AuthMiddleware(cfg)
	apiGroup := router.Group("/api")
	apiGroup.Use(authMiddleware)
	{
		// Whole document
		apiGroup.GET("/data", func(c *gin.Context) { GetDataHandler(c, store, cfg) })
		apiGroup.POST("/data", func(c *gin.Context) { ReplaceDataHandler(c, store, cfg) })

		// Accounts
		apiGroup.GET("/users", func(c *gin.Context) { GetUsersHandler(c, store, cfg) })
		apiGroup.POST("/users", func(c *gin.Context) { ReplaceUsersHandler(c, store, cfg) })

		// Workers
		apiGroup.GET("/operai", func(c *gin.Context) { ListOperaiHandler(c, store, cfg) })
		apiGroup.POST("/operai", func(c *gin.Context) { CreateOperaioHandler(c, store, cfg) })
		apiGroup.PUT("/operai/:id", func(c *gin.Context) { UpdateOperaioHandler(c, store, cfg) })
		apiGroup.DELETE("/operai/:id", func(c *gin.Context) { DeleteOperaioHandler(c, store, cfg) })

		// Worker documents
		apiGroup.GET("/operai/:id/documenti", func(c *gin.Context) { ListDocumentsHandler(c, docs, cfg) })
		apiGroup.POST("/operai/:id/documenti", func(c *gin.Context) { UploadDocumentHandler(c, docs, cfg) })
		apiGroup.DELETE("/operai/:id/documenti", func(c *gin.Context) { DeleteAllDocumentsHandler(c, docs, cfg) })
		apiGroup.PUT("/operai/:id/documenti/:nome", func(c *gin.Context) { RenameDocumentHandler(c, docs, cfg) })
		apiGroup.DELETE("/operai/:id/documenti/:nome", func(c *gin.Context) { DeleteDocumentHandler(c, docs, cfg) })

		// Sites
		apiGroup.GET("/cantieri", func(c *gin.Context) { ListCantieriHandler(c, store, cfg) })
		apiGroup.POST("/cantieri", func(c *gin.Context) { CreateCantiereHandler(c, store, cfg) })
		apiGroup.PUT("/cantieri/:id", func(c *gin.Context) { UpdateCantiereHandler(c, store, cfg) })

		// Attendance
		apiGroup.GET("/giornate", func(c *gin.Context) { ListGiornateHandler(c, store, cfg) })
		apiGroup.POST("/giornate", func(c *gin.Context) { CreateGiornateHandler(c, store, cfg) })

		// Diary
		apiGroup.GET("/diari", func(c *gin.Context) { ListDiariHandler(c, store, cfg) })
		apiGroup.GET("/diari/:id", func(c *gin.Context) { GetDiarioHandler(c, store, cfg) })
		apiGroup.POST("/diari", func(c *gin.Context) { CreateDiarioHandler(c, store, cfg) })
		apiGroup.DELETE("/diari/:id", func(c *gin.Context) { DeleteDiarioHandler(c, store, cfg) })

		// Issue reports
		apiGroup.GET("/segnalazioni", func(c *gin.Context) { ListSegnalazioniHandler(c, store, cfg) })
		apiGroup.POST("/segnalazioni", func(c *gin.Context) { CreateSegnalazioneHandler(c, store, cfg) })
		apiGroup.DELETE("/segnalazioni/:id", func(c *gin.Context) { DeleteSegnalazioneHandler(c, store, cfg) })

		// Recordings
		apiGroup.GET("/registrazioni", func(c *gin.Context) { ListRegistrazioniHandler(c, store, cfg) })
		apiGroup.POST("/registrazioni", func(c *gin.Context) { CreateRegistrazioneHandler(c, store, cfg) })
		apiGroup.DELETE("/registrazioni/:id", func(c *gin.Context) { DeleteRegistrazioneHandler(c, store, cfg) })
	}

	// Stored documents are served back byte-for-byte from their physical
	// paths.
	router.Static("/uploads/documenti", docs.Root())

	// Static web client with an index.html catch-all for client-side routes.
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") || strings.HasPrefix(c.Request.URL.Path, "/uploads/") {
			c.JSON(http.StatusNotFound, utils.APIError{Error: "Not found"})
			return
		}
		requested := filepath.Join(cfg.PublicDir, filepath.Clean("/"+c.Request.URL.Path))
		if info, err := os.Stat(requested); err == nil && !info.IsDir() {
			c.File(requested)
			return
		}
		c.File(filepath.Join(cfg.PublicDir, "index.html"))
	})

	return router
}
