package http

import (
	"net/http"

	mw "github.com/navbat/queue-backend/internal/adapters/primary/http/middleware"
	"github.com/navbat/queue-backend/internal/auth"
)

// getClaims extracts the authenticated caller or writes a 401.
func getClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := mw.GetClaims(r.Context())
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "Not authorized",
			Code:  "UNAUTHORIZED",
		})
		return nil, false
	}
	return claims, true
}
