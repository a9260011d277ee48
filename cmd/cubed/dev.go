package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cubedlayer/cubed"
)

var (
	devHost string
	devPort int
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Serve the core over a minimal development HTTP binding",
	Long: `Starts a bare POST /query endpoint (plus GET /healthz) in front of
one cubed.Service, for local development against a real backend. This is
not the transport layer spec §1 scopes out of the core — it is a single
thin binding meant for local iteration, the way a library's "dev server"
example is never its production router.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cubed.LoadConfig(configPath)
		if err != nil {
			return failureError(err)
		}

		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		defer tp.Shutdown(context.Background())

		ctx := cmd.Context()
		svc, err := cubed.Open(ctx, cfg)
		if err != nil {
			return failureError(err)
		}
		defer svc.Close()

		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", handleHealthz)
		mux.HandleFunc("/query", handleQuery(svc))

		addr := fmt.Sprintf("%s:%d", devHost, devPort)
		fmt.Fprintf(cmd.OutOrStdout(), "cubed dev serving on %s\n", addr)
		srv := &http.Server{Addr: addr, Handler: mux}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return failureError(err)
		}
		return nil
	},
}

func init() {
	devCmd.Flags().StringVar(&devHost, "host", "127.0.0.1", "Host to bind")
	devCmd.Flags().IntVar(&devPort, "port", 4000, "Port to bind")
	rootCmd.AddCommand(devCmd)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleQuery decodes one request (or an array of requests, a blending
// query per spec §4.10.5), executes it, and writes back the response
// envelope spec §6 defines. Authentication/token decoding is the
// transport's job; the security context here comes straight off an
// X-Cubed-Security header as a JSON object, for local testing only.
func handleQuery(svc *cubed.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var sec *cubed.SecurityContext
		if header := r.Header.Get("X-Cubed-Security"); header != "" {
			s, err := cubed.DecodeSecurityContext([]byte(header))
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			sec = s
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		var payload any
		var err error
		if isJSONArray(raw) {
			var bodies []json.RawMessage
			if err = json.Unmarshal(raw, &bodies); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			reqs := make([]*cubed.Request, 0, len(bodies))
			for _, b := range bodies {
				req, decErr := cubed.DecodeRequest(b, time.Now())
				if decErr != nil {
					writeError(w, http.StatusBadRequest, decErr)
					return
				}
				reqs = append(reqs, req)
			}
			payload, err = svc.ExecuteBlending(ctx, reqs, sec)
		} else {
			req, decErr := cubed.DecodeRequest(raw, time.Now())
			if decErr != nil {
				writeError(w, http.StatusBadRequest, decErr)
				return
			}
			if valErr := req.Validate(); valErr != nil {
				writeError(w, http.StatusBadRequest, valErr)
				return
			}
			payload, err = svc.Execute(ctx, req, sec)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	}
}

func isJSONArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
