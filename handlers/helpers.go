package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Dosada05/quiz-duel/middleware"
	"github.com/Dosada05/quiz-duel/services"
	"github.com/go-chi/chi/v5"
)

type jsonResponse map[string]interface{}

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err)
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

func errorResponse(w http.ResponseWriter, r *http.Request, status int, message interface{}) {
	env := jsonResponse{"error": message}
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.ErrorContext(r.Context(), "Error writing error JSON response", slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "Internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	message := "the server encountered a problem and could not process your request"
	errorResponse(w, r, http.StatusInternalServerError, message)
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func notFoundResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusNotFound, message)
}

func conflictResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusConflict, message)
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusUnauthorized, message)
}

func forbiddenResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusForbidden, message)
}

// invalidStateResponse - 409 с текущим состоянием матча, чтобы клиент мог синхронизироваться.
func invalidStateResponse(w http.ResponseWriter, r *http.Request, err error) {
	env := jsonResponse{"error": err.Error()}

	var stateErr *services.StateError
	if errors.As(err, &stateErr) {
		env["state"] = jsonResponse{
			"match_status":  stateErr.Status,
			"current_round": stateErr.Round,
		}
	}

	if werr := writeJSON(w, http.StatusConflict, env, nil); werr != nil {
		serverErrorResponse(w, r, werr)
	}
}

// mapServiceErrorToHTTP преобразует ошибки сервисного слоя в HTTP-ответы
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrInternal):
		serverErrorResponse(w, r, err)
	case errors.Is(err, services.ErrInvalidRequest):
		badRequestResponse(w, r, err)
	case errors.Is(err, services.ErrNotFound):
		notFoundResponse(w, r, err.Error())
	case errors.Is(err, services.ErrForbidden):
		forbiddenResponse(w, r, err.Error())
	case errors.Is(err, services.ErrInvalidState):
		invalidStateResponse(w, r, err)
	case errors.Is(err, services.ErrConflict):
		conflictResponse(w, r, err.Error())
	default:
		serverErrorResponse(w, r, err)
	}
}

var errIdentityMismatch = errors.New("user id does not match the authenticated user")

// actingUserID выбирает пользователя запроса. Если токен проверен, его идентичность
// главнее: пустой userId подставляется из токена, чужой userId запрещён.
func actingUserID(r *http.Request, claimed string) (string, error) {
	tokenUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		if errors.Is(err, middleware.ErrNoIdentity) {
			return claimed, nil
		}
		return "", err
	}

	if claimed != "" && claimed != tokenUserID {
		return "", errIdentityMismatch
	}
	return tokenUserID, nil
}

// respondActingUserError пишет ответ для ошибки actingUserID.
func respondActingUserError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errIdentityMismatch) {
		forbiddenResponse(w, r, err.Error())
		return
	}
	unauthorizedResponse(w, r, "failed to identify current user")
}

func getMatchIDFromURL(r *http.Request) (string, error) {
	matchID := strings.TrimSpace(chi.URLParam(r, "matchID"))
	if matchID == "" {
		return "", errors.New("missing match id in URL path")
	}
	return matchID, nil
}

func getRoundFromURL(r *http.Request) (int, error) {
	roundStr := chi.URLParam(r, "round")
	round, err := strconv.Atoi(roundStr)
	if err != nil {
		return 0, fmt.Errorf("invalid round in URL path: %q", roundStr)
	}
	return round, nil
}
