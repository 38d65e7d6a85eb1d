package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"conciliacion-service/internal/models"
)

func SetupRouter(
	matchingHandler *MatchingHandler,
	periodHandler *PeriodHandler,
	dataHandler *DataHandler,
	log zerolog.Logger,
) *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()

	api.Use(loggingMiddleware(log))
	api.Use(jsonContentTypeMiddleware)

	router.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)

	period := "/accounts/{account_id:[0-9]+}/periods/{year:[0-9]+}/{month:[0-9]+}"

	api.HandleFunc(period+"/matching/run", matchingHandler.Run).Methods(http.MethodPost)
	api.HandleFunc(period+"/system-movements", matchingHandler.SystemUniverse).Methods(http.MethodGet)
	api.HandleFunc(period+"/integrity/violations", matchingHandler.DetectViolations).Methods(http.MethodGet)
	api.HandleFunc(period+"/integrity/repair", matchingHandler.RepairViolations).Methods(http.MethodPost)

	api.HandleFunc("/matches/link", matchingHandler.LinkManual).Methods(http.MethodPost)
	api.HandleFunc("/matches/ignore", matchingHandler.Ignore).Methods(http.MethodPost)
	api.HandleFunc("/matches/extract/{extract_id:[0-9]+}", matchingHandler.Unlink).Methods(http.MethodDelete)
	api.HandleFunc("/movements/create-and-link", matchingHandler.CreateAndLinkBatch).Methods(http.MethodPost)

	api.HandleFunc(period, periodHandler.Get).Methods(http.MethodGet)
	api.HandleFunc(period, periodHandler.Save).Methods(http.MethodPut)
	api.HandleFunc(period+"/recompute", periodHandler.Recompute).Methods(http.MethodPost)
	api.HandleFunc(period+"/statement", dataHandler.IngestStatement).Methods(http.MethodPost)

	api.HandleFunc("/accounts/{account_id:[0-9]+}/ledger/import", dataHandler.ImportLedger).Methods(http.MethodPost)

	api.HandleFunc("/config", dataHandler.GetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", dataHandler.UpdateConfig).Methods(http.MethodPut)

	api.HandleFunc("/accounts/{account_id:[0-9]+}/aliases", dataHandler.ListAliases).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{account_id:[0-9]+}/aliases", dataHandler.CreateAlias).Methods(http.MethodPost)
	api.HandleFunc("/aliases/{alias_id:[0-9]+}", dataHandler.UpdateAlias).Methods(http.MethodPut)
	api.HandleFunc("/aliases/{alias_id:[0-9]+}", dataHandler.DeleteAlias).Methods(http.MethodDelete)

	api.HandleFunc("/currencies", dataHandler.ListCurrencies).Methods(http.MethodGet)

	return router
}

func loggingMiddleware(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// periodVars extracts the (account, year, month) key from the route.
func periodVars(r *http.Request) (int64, int, int, error) {
	vars := mux.Vars(r)
	accountID, err := strconv.ParseInt(vars["account_id"], 10, 64)
	if err != nil {
		return 0, 0, 0, models.NewValidationError("invalid account_id")
	}
	year, err := strconv.Atoi(vars["year"])
	if err != nil {
		return 0, 0, 0, models.NewValidationError("invalid year")
	}
	month, err := strconv.Atoi(vars["month"])
	if err != nil {
		return 0, 0, 0, models.NewValidationError("invalid month")
	}
	return accountID, year, month, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, models.NewValidationError("invalid %s", name)
	}
	return id, nil
}

// respondWithServiceError maps the service error taxonomy onto HTTP
// status codes.
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrRecomputeNotAllowed):
		respondWithError(w, http.StatusConflict, err.Error())
	case models.IsValidation(err):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case models.IsConflict(err):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Error marshaling JSON response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
