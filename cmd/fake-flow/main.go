// ABOUTME: Stub agent backend for local development and manual testing
// ABOUTME: Serves the run endpoint and echoes input in the expected JSON shape

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

type runRequest struct {
	InputValue string `json:"input_value"`
	SessionID  string `json:"session_id"`
}

func main() {
	addr := flag.String("addr", ":7860", "listen address")
	apiKey := flag.String("api-key", "", "require this x-api-key header (empty disables the check)")
	delay := flag.Duration("delay", 0, "artificial response delay, for timeout testing")
	fail := flag.Int("fail", 0, "respond with this HTTP status instead of a reply")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	http.HandleFunc("/api/v1/run/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if *apiKey != "" && r.Header.Get("x-api-key") != *apiKey {
			http.Error(w, "invalid api key", http.StatusForbidden)
			return
		}

		var req runRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}

		flowID := strings.TrimPrefix(r.URL.Path, "/api/v1/run/")
		logger.Info("run request", "flow", flowID, "session", req.SessionID, "input_len", len(req.InputValue))

		if *delay > 0 {
			select {
			case <-time.After(*delay):
			case <-r.Context().Done():
				return
			}
		}
		if *fail != 0 {
			http.Error(w, "simulated backend failure", *fail)
			return
		}

		reply := fmt.Sprintf("echo from %s: %s", flowID, req.InputValue)
		resp := map[string]any{
			"session_id": req.SessionID,
			"outputs": []map[string]any{{
				"outputs": []map[string]any{{
					"results": map[string]any{
						"message": map[string]any{"text": reply},
					},
				}},
			}},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	logger.Info("fake flow backend listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
