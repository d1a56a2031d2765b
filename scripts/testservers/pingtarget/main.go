// Command pingtarget is a local endpoint for exercising crankping by hand.
// It accepts the ping POST body and answers with a configurable mix of
// successes, failures and slow responses.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

type pingBody struct {
	RefID     string `json:"refid"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

type behavior struct {
	failRate  float64       // share of requests answered with 500
	emptyRate float64       // share of successes answered with an empty body
	slowRate  float64       // share of requests delayed by slowDelay
	slowDelay time.Duration
	roll      func() float64
}

type target struct {
	behavior behavior
	served   atomic.Int64
}

func main() {
	port := flag.Int("port", 8080, "Listening port")
	failRate := flag.Float64("fail-rate", 0.1, "Fraction of requests answered with HTTP 500")
	emptyRate := flag.Float64("empty-rate", 0.05, "Fraction of successes answered with an empty body")
	slowRate := flag.Float64("slow-rate", 0.05, "Fraction of requests delayed by -slow-delay")
	slowDelay := flag.Duration("slow-delay", 20*time.Second, "Delay for slow requests (beyond crankping's default timeout)")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	t := &target{behavior: behavior{
		failRate:  *failRate,
		emptyRate: *emptyRate,
		slowRate:  *slowRate,
		slowDelay: *slowDelay,
		roll:      rand.Float64,
	}}

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("ping target listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, t.mux()))
}

func (t *target) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", t.handlePing)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, "path": r.URL.Path, "served": t.served.Load()})
	})
	return mux
}

func (t *target) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		respondJSON(w, http.StatusUnsupportedMediaType, map[string]any{"error": "expected application/json"})
		return
	}

	var body pingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "body must carry refid, timestamp and nonce"})
		return
	}
	n := t.served.Add(1)

	b := t.behavior
	if b.roll() < b.slowRate {
		select {
		case <-time.After(b.slowDelay):
		case <-r.Context().Done():
			return
		}
	}
	if b.roll() < b.failRate {
		respondJSON(w, http.StatusInternalServerError, map[string]any{"error": "injected failure", "refid": body.RefID})
		return
	}
	if b.roll() < b.emptyRate {
		w.WriteHeader(http.StatusCreated)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"refid":   body.RefID,
		"nonce":   body.Nonce,
		"lag_ms":  time.Now().UnixMilli() - body.Timestamp,
		"request": n,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
