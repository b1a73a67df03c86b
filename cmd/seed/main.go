// seed inserts demo customers, policies and call history into the local dev
// database so the scheduler has something to chew on.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/abakirov/outdialer/internal/infrastructure/postgres"
)

type customerSpec struct {
	name       string
	phone      string
	expiryDays int // policy end date, days from now; -1 = no policy
	calledAgo  int // days since last call; -1 = never called
}

var customers = []customerSpec{
	// Expiring soon, never called — should all be selected
	{"Aigerim Satybaldieva", "+996700000001", 3, -1},
	{"Bakyt Osmonov", "+996700000002", 7, -1},
	{"Cholpon Abdyldaeva", "+996700000003", 14, -1},
	{"Daniyar Mambetov", "+996700000004", 21, -1},
	{"Elmira Toktogulova", "+996700000005", 29, -1},

	// Expiring soon but called recently — skip window should drop them
	{"Farida Dzhumabekova", "+996700000006", 5, 2},
	{"Gulnara Isaeva", "+996700000007", 10, 5},

	// Expiring soon, called long ago — should be selected
	{"Iskender Kadyrov", "+996700000008", 12, 45},

	// Policy expires outside the lookahead window — not candidates
	{"Jyldyz Omurbekova", "+996700000009", 90, -1},
	{"Kubanychbek Asanov", "+996700000010", 180, -1},

	// No active policy — not candidates
	{"Leila Sydykova", "+996700000011", -1, -1},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set — run: direnv allow")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	var inserted, skipped int
	for i, spec := range customers {
		var customerID string
		err := pool.QueryRow(ctx, `
			INSERT INTO customers (name, phone)
			VALUES ($1, $2)
			ON CONFLICT (phone) DO NOTHING
			RETURNING id`,
			spec.name, spec.phone,
		).Scan(&customerID)
		if err != nil {
			// Conflict returns no row; re-runs are idempotent.
			skipped++
			continue
		}
		inserted++

		if spec.expiryDays >= 0 {
			endDate := time.Now().AddDate(0, 0, spec.expiryDays)
			policyRef := fmt.Sprintf("POL-2026-%04d", i+1)
			if _, err := pool.Exec(ctx, `
				INSERT INTO customer_policies (customer_id, policy_ref, status, start_date, end_date)
				VALUES ($1, $2, 'active', $3, $4)`,
				customerID, policyRef, endDate.AddDate(-1, 0, 0), endDate,
			); err != nil {
				log.Fatalf("insert policy for %s: %v", spec.name, err)
			}
		}

		if spec.calledAgo >= 0 {
			startedAt := time.Now().AddDate(0, 0, -spec.calledAgo)
			if _, err := pool.Exec(ctx, `
				INSERT INTO calls (customer_id, started_at, status)
				VALUES ($1, $2, 'completed')`,
				customerID, startedAt,
			); err != nil {
				log.Fatalf("insert call for %s: %v", spec.name, err)
			}
		}
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Customers created: %d  (skipped %d already existing)\n", inserted, skipped)
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  export JWT=...   # any HS256 token signed with JWT_SECRET, sub claim set")
	fmt.Println()
	fmt.Println("  Preview who the next batch would call:")
	fmt.Println("    curl -s http://localhost:8080/scheduler/pending-customers -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  Kick off a batch without waiting for the daily run:")
	fmt.Println("    curl -s -X POST http://localhost:8080/scheduler/trigger-now -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  Watch the calls move through the state machine:")
	fmt.Println("    curl -s http://localhost:8080/scheduler/scheduled-calls -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  What to expect:")
	fmt.Println("    customers 1-5, 8  →  selected (policy inside the 30-day window)")
	fmt.Println("    customers 6-7     →  skipped (called within the last 7 days)")
	fmt.Println("    customers 9-11    →  not candidates (no expiring policy)")
}
