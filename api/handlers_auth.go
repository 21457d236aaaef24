package api

import (
	"fmt"
	"net/http"

	"kecantiere/config"
	"kecantiere/db"
	"kecantiere/utils"

	"github.com/gin-gonic/gin"
)

// LoginRequest defines the expected body for logging in. The password may be
// either the plain password or the digest the embedded client computes
// before submitting.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued token and the account identity.
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// LoginHandler checks the submitted credentials against the users file and
// issues a JWT on success.
func LoginHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	var req LoginRequest
	if err := c.BindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	digest := utils.LegacyDigest(req.Password)
	for _, account := range store.LoadUsers() {
		if account.Username != req.Username {
			continue
		}
		// Legacy clients send the digest itself rather than the password.
		if account.Password != digest && account.Password != req.Password {
			break
		}

		token, err := utils.GenerateJWT(account, cfg)
		if err != nil {
			utils.GinInternalServerError(c, fmt.Sprintf("Failed to issue token: %v", err))
			return
		}
		c.JSON(http.StatusOK, LoginResponse{
			Token:    token,
			Username: account.Username,
			Role:     account.Role,
		})
		return
	}

	utils.GinUnauthorized(c, "Credenziali non valide")
}
