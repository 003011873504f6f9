package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// mockUpstream serves the account listing and the inspect endpoint over a fixed
// list of identifiers. The cursor is the index of the last returned identifier.
type mockUpstream struct {
	server   *httptest.Server
	accounts []string

	mu           sync.Mutex
	pageRequests int
	inspects     map[string]int
	// throttle answers 429 this many times for an identifier before serving it
	throttle     map[string]int
}

func newMockUpstream(accounts []string) *mockUpstream {
	m := &mockUpstream{
		accounts: accounts,
		inspects: make(map[string]int),
		throttle: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", m.handlePage)
	mux.HandleFunc("/inspect", m.handleInspect)
	m.server = httptest.NewServer(mux)
	return m
}

func (m *mockUpstream) URL() string { return m.server.URL }

func (m *mockUpstream) Close() { m.server.Close() }

func (m *mockUpstream) handlePage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variables struct {
			First int    `json:"first"`
			After string `json:"after"`
		} `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.pageRequests++
	m.mu.Unlock()

	start := 0
	if req.Variables.After != "" {
		n, err := strconv.Atoi(req.Variables.After)
		if err != nil {
			http.Error(w, "bad cursor", http.StatusBadRequest)
			return
		}
		start = n + 1
	}
	end := start + req.Variables.First
	if end > len(m.accounts) {
		end = len(m.accounts)
	}
	if start > end {
		start = end
	}

	edges := make([]map[string]interface{}, 0, end-start)
	for _, a := range m.accounts[start:end] {
		edges = append(edges, map[string]interface{}{"node": map[string]interface{}{"address": a}})
	}
	var endCursor interface{}
	if end > start {
		endCursor = strconv.Itoa(end - 1)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": map[string]interface{}{
			"accounts": map[string]interface{}{
				"edges": edges,
				"pageInfo": map[string]interface{}{
					"hasNextPage": end < len(m.accounts),
					"endCursor":   endCursor,
				},
			},
		},
	})
}

func (m *mockUpstream) handleInspect(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")

	m.mu.Lock()
	m.inspects[address]++
	throttled := m.throttle[address] > 0
	if throttled {
		m.throttle[address]--
	}
	m.mu.Unlock()

	if throttled {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"address": address,
		"balance": "1000000000",
		"status":  "active",
	})
}

func (m *mockUpstream) inspectCount(address string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inspects[address]
}

func (m *mockUpstream) totalInspects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.inspects {
		total += n
	}
	return total
}
