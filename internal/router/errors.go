package router

import (
	"encoding/json"
	"net/http"

	"geotech-lab-api/internal/model"
)

func writeRouteError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.NewErrorResponse(status, r.URL.Path, code, message, ""))
}
