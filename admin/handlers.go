// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/stakemesh/stakemesh/log"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/runtime"
)

// Chain is the part of the runtime the admin API reads.
type Chain interface {
	Best() (runtime.Head, bool, error)
}

type logLevelRequest struct {
	Level string `json:"level"`
}

type logLevelResponse struct {
	CurrentLevel string `json:"currentLevel"`
}

type headResponse struct {
	Number    mesh.BlockNumber `json:"number"`
	Timestamp mesh.Moment      `json:"timestamp"`
	Digest    mesh.Bytes32     `json:"digest"`
}

type errorResponse struct {
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, errCode int, errMsg string) {
	writeJSON(w, errCode, errorResponse{
		ErrorCode:    errCode,
		ErrorMessage: errMsg,
	})
}

func getLogLevelHandler(logLevel *slog.LevelVar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, logLevelResponse{CurrentLevel: log.LevelName(logLevel.Level())})
	}
}

func postLogLevelHandler(logLevel *slog.LevelVar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req logLevelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		level, err := log.ParseLevel(req.Level)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid verbosity level")
			return
		}
		logLevel.Set(level)
		logger.Info("log level changed", "level", log.LevelName(level))
		writeJSON(w, http.StatusOK, logLevelResponse{CurrentLevel: log.LevelName(level)})
	}
}

func headHandler(chain Chain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		head, ok, err := chain.Best()
		if err != nil {
			logger.Warn("failed to read head", "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to read head")
			return
		}
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "No genesis")
			return
		}
		writeJSON(w, http.StatusOK, headResponse{
			Number:    head.Number,
			Timestamp: head.Timestamp,
			Digest:    head.Digest,
		})
	}
}
