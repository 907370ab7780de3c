// seed_history.go is a standalone script to generate synthetic routing
// traffic and outcomes against a running cascade router, so the
// threshold tuner has history to work with.
//
// Usage:
//
//	go run scripts/seed_history.go -api http://localhost:8700 -n 200 -correct 0.8
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
)

var taskTemplates = []struct {
	description string
	target      string
}{
	{"Fix authentication bug in login flow", "development-master"},
	{"Deploy the billing service to staging", "operations-master"},
	{"Investigate slow dashboard queries", "analytics-master"},
	{"Write release notes for v2.3", "documentation-master"},
	{"Rotate the API signing keys", "security-master"},
	{"Refactor the payment webhook handler", "development-master"},
	{"Set up alerts for disk usage on db nodes", "operations-master"},
	{"Build a churn report for Q3", "analytics-master"},
	{"Update the onboarding guide screenshots", "documentation-master"},
	{"Review the new OAuth scopes request", "security-master"},
}

type routeResponse struct {
	EventID        string  `json:"event_id"`
	SelectedTarget *string `json:"selected_target"`
	RoutingLayer   string  `json:"routing_layer"`
	Confidence     float64 `json:"confidence"`
}

func main() {
	apiURL := flag.String("api", "http://localhost:8700", "cascade API base URL")
	n := flag.Int("n", 200, "number of tasks to route")
	correctRate := flag.Float64("correct", 0.8, "fraction of outcomes reported as correctly routed")
	seed := flag.Int64("seed", 1, "rng seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	client := &http.Client{}

	routed, outcomes := 0, 0
	for i := 0; i < *n; i++ {
		tpl := taskTemplates[rng.Intn(len(taskTemplates))]

		body, _ := json.Marshal(map[string]interface{}{
			"description": fmt.Sprintf("%s (run %d)", tpl.description, i),
		})
		resp, err := client.Post(*apiURL+"/api/v1/route", "application/json", bytes.NewReader(body))
		if err != nil {
			log.Fatalf("route request: %v", err)
		}
		var decision routeResponse
		if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
			log.Fatalf("decode route response: %v", err)
		}
		resp.Body.Close()
		routed++

		if decision.RoutingLayer == "clarification" {
			continue
		}

		correct := rng.Float64() < *correctRate
		outcome := map[string]interface{}{
			"task_completed":     correct,
			"status":             "completed",
			"was_correct_target": correct,
		}
		if !correct {
			outcome["corrected_to"] = tpl.target
			outcome["status"] = "failed"
		}
		body, _ = json.Marshal(outcome)
		resp, err = client.Post(
			fmt.Sprintf("%s/api/v1/events/%s/outcome", *apiURL, decision.EventID),
			"application/json", bytes.NewReader(body))
		if err != nil {
			log.Fatalf("outcome request: %v", err)
		}
		resp.Body.Close()
		outcomes++
	}

	fmt.Printf("routed %d tasks, recorded %d outcomes\n", routed, outcomes)
}
