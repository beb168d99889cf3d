// mock-webhook is a local stand-in for the monitoring endpoint errtrack
// delivers alerts to. It prints every alert it receives and always accepts.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"time"
)

type alert struct {
	ID          string    `json:"id"`
	Rule        string    `json:"rule"`
	Severity    string    `json:"severity"`
	Message     string    `json:"message"`
	Metric      float64   `json:"metric"`
	Threshold   float64   `json:"threshold"`
	TriggeredAt time.Time `json:"triggeredAt"`
}

func main() {
	addr := flag.String("addr", ":9900", "listen address")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/alerts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var a alert
		if err := json.Unmarshal(body, &a); err != nil {
			log.Printf("alert (unparsed): %s", body)
			w.WriteHeader(http.StatusOK)
			return
		}
		log.Printf("alert [%s] rule=%s metric=%.2f threshold=%.2f: %s",
			a.Severity, a.Rule, a.Metric, a.Threshold, a.Message)
		w.WriteHeader(http.StatusOK)
	})

	log.Printf("mock-webhook listening on %s", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal(err)
	}
}
