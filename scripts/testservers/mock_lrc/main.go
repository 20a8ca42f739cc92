// Command mock_lrc fakes enough of the load-test service for a full
// loadpilot run against localhost: login, run start, a scripted status
// sequence, results, transactions, and report rendering.
//
// Example:
//
//	go run ./scripts/testservers/mock_lrc -port 8085 -polls 5 -final PASSED
//	loadpilot --url http://localhost:8085 --tenant demo --project-id 1 \
//	  --username u --password p -t 42 --test-mode
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	sessionCookie = "LWSSO_COOKIE_KEY"
	sessionToken  = "mock-session-token"
	runID         = 1001
	reportID      = 77
)

type mockService struct {
	finalStatus string
	statusPolls int
	reportPolls int

	mu          sync.Mutex
	statusCalls int
	reportCalls int
}

func main() {
	port := flag.Int("port", 8085, "Listening port")
	polls := flag.Int("polls", 5, "Status polls before the run turns terminal")
	final := flag.String("final", "PASSED", "Terminal status to report: PASSED, FAILED, ABORTED, SYSTEM_ERROR")
	reportDelay := flag.Int("report-delay", 2, "GetReport polls answered 202 before the PDF is ready")
	flag.Parse()

	svc := &mockService{
		finalStatus: strings.ToUpper(strings.TrimSpace(*final)),
		statusPolls: *polls,
		reportPolls: *reportDelay,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth", handleLogin)
	mux.HandleFunc("POST /v1/auth-client", handleLogin)
	mux.HandleFunc("GET /v1/projects/{projectId}/load-tests/{loadTestId}", svc.requireSession(svc.handleGetLoadTest))
	mux.HandleFunc("POST /v1/projects/{projectId}/load-tests/{loadTestId}/runs", svc.requireSession(svc.handleStartRun))
	mux.HandleFunc("GET /v1/test-runs/{runId}/status", svc.requireSession(svc.handleRunStatus))
	mux.HandleFunc("PUT /v1/test-runs/{runId}", svc.requireSession(svc.handleChangeStatus))
	mux.HandleFunc("GET /v1/test-runs/{runId}", svc.requireSession(svc.handleGetTestRun))
	mux.HandleFunc("GET /v1/test-runs/{runId}/results", svc.requireSession(svc.handleResults))
	mux.HandleFunc("GET /v1/test-runs/{runId}/transactions", svc.requireSession(svc.handleTransactions))
	mux.HandleFunc("POST /v1/test-runs/{runId}/reports", svc.requireSession(svc.handleGenerateReport))
	mux.HandleFunc("GET /v1/test-runs/reports/{reportId}", svc.requireSession(svc.handleGetReport))
	mux.HandleFunc("GET /v1/test-runs/{runId}/trt.csv", svc.requireSession(svc.handleTrtCsv))

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("mock load-test service listening on %s (final=%s after %d polls)", addr, svc.finalStatus, svc.statusPolls)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds map[string]string
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"message": "malformed credentials"})
		return
	}
	if creds["password"] == "" && creds["client_secret"] == "" {
		respondJSON(w, http.StatusUnauthorized, map[string]any{"message": "bad credentials"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: sessionToken, Path: "/"})
	respondJSON(w, http.StatusOK, map[string]any{"token": sessionToken})
}

func (s *mockService) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil || cookie.Value != sessionToken {
			respondJSON(w, http.StatusUnauthorized, map[string]any{"message": "missing session"})
			return
		}
		next(w, r)
	}
}

func (s *mockService) handleGetLoadTest(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"id":        atoi(r.PathValue("loadTestId")),
		"name":      "Mock Checkout Test",
		"projectId": atoi(r.PathValue("projectId")),
		"transactions": []map[string]any{
			{"name": "login", "scriptName": "main"},
			{"name": "checkout", "scriptName": "main"},
		},
	})
}

func (s *mockService) handleStartRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.statusCalls = 0
	s.reportCalls = 0
	s.mu.Unlock()
	log.Printf("run %d started for test %s", runID, r.PathValue("loadTestId"))
	respondJSON(w, http.StatusOK, map[string]any{"runId": runID})
}

// handleRunStatus walks INITIALIZING -> RUNNING -> COLLATING_RESULTS ->
// final, spending most of the configured polls in RUNNING.
func (s *mockService) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.statusCalls++
	call := s.statusCalls
	s.mu.Unlock()

	status := "RUNNING"
	switch {
	case call == 1:
		status = "INITIALIZING"
	case call >= s.statusPolls:
		status = s.finalStatus
	case call == s.statusPolls-1:
		status = "COLLATING_RESULTS"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"detailedStatus": fmt.Sprintf("poll %d", call),
	})
}

func (s *mockService) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	log.Printf("run %s: status change requested (action=%s)", r.PathValue("runId"), r.URL.Query().Get("action"))
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *mockService) handleGetTestRun(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"id":        atoi(r.PathValue("runId")),
		"status":    s.finalStatus,
		"trtCsvUrl": fmt.Sprintf("http://%s/v1/test-runs/%s/trt.csv", r.Host, r.PathValue("runId")),
	})
}

func (s *mockService) handleResults(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"duration":                "0:30:00",
		"averageThroughput":       "1.5 MB/s",
		"totalThroughput":         "2.6 GB/s",
		"averageHits":             "180.4 hits/s",
		"vusersNum":               50,
		"totalTransactionsPassed": 1200,
		"totalTransactionsFailed": 7,
		"scriptErrors":            3,
		"status":                  s.finalStatus,
	})
}

func (s *mockService) handleTransactions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, []map[string]any{
		{
			"name": "login", "scriptName": "main", "passed": 600, "failed": 2,
			"trtSummary": map[string]any{"min": 0.101, "max": 2.412, "avg": 0.512, "p90": 0.934},
		},
		{
			"name": "checkout", "scriptName": "main", "passed": 600, "failed": 5,
			"trtSummary": map[string]any{"min": 0.221, "max": 4.105, "avg": 1.204, "p90": 2.418},
		},
	})
}

func (s *mockService) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	log.Printf("run %s: report generation requested", r.PathValue("runId"))
	respondJSON(w, http.StatusOK, map[string]any{"reportId": reportID})
}

func (s *mockService) handleGetReport(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.reportCalls++
	ready := s.reportCalls > s.reportPolls
	s.mu.Unlock()

	if !ready {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	fmt.Fprintf(w, "%%PDF-1.7 mock report for run %d rendered at %s", runID, time.Now().UTC().Format(time.RFC3339))
}

func (s *mockService) handleTrtCsv(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	fmt.Fprint(w, "Transaction,Script,SLA Status,Avg\nlogin,main,OK,0.512\ncheckout,main,OK,1.204\n")
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
