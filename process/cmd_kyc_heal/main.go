// kyc-heal repairs the inconsistencies kyc-check-missing reports: verified
// owners with no submission get an approved submission shell with safe
// defaults, and verified flags are realigned with the latest terminal
// submission.
//
// Exit codes: 0 success, 1 inconsistencies found (dry run), 2 operational
// failure.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

func main() {
	dryRun := flag.Bool("dry_run", false, "report what would be healed without writing")
	flag.Parse()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Println("DB_DSN not set")
		os.Exit(2)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Printf("open db: %v", err)
		os.Exit(2)
	}
	defer db.Close()

	found := 0
	found += healMissingShells(db, *dryRun)
	found += healVerifiedFlags(db, *dryRun)

	if *dryRun && found > 0 {
		fmt.Printf("%d items need healing (dry run)\n", found)
		os.Exit(1)
	}
	fmt.Printf("healed %d items\n", found)
}

// healMissingShells creates an approved submission shell for every verified
// user that has no submission at all (legacy accounts verified before the
// pipeline existed).
func healMissingShells(db *sql.DB, dryRun bool) int {
	rows, err := db.Query(`SELECT u.id FROM users u
		WHERE u.verified AND NOT EXISTS (
		  SELECT 1 FROM kyc_submissions s
		  WHERE s.owner_kind = 'INDIVIDUAL' AND s.owner_id = u.id)`)
	if err != nil {
		log.Printf("query shells: %v", err)
		os.Exit(2)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			log.Printf("scan: %v", err)
			continue
		}
		n++
		if dryRun {
			fmt.Printf("would create submission shell for user_%d\n", userID)
			continue
		}
		ref := uuid.NewString()
		tx, err := db.Begin()
		if err != nil {
			log.Printf("begin: %v", err)
			os.Exit(2)
		}
		var subID int64
		err = tx.QueryRow(`INSERT INTO kyc_submissions
			(created_at, updated_at, submission_id, owner_kind, owner_id, declared_id_type, status, decided_at)
			VALUES (now(), now(), $1, 'INDIVIDUAL', $2, 'UNKNOWN', 'APPROVED', now())
			RETURNING id`, ref, userID).Scan(&subID)
		if err == nil {
			_, err = tx.Exec(`INSERT INTO decision_records
				(created_at, updated_at, submission_id, outcome, overall_confidence, thresholds_json, reasons, decided_at)
				VALUES (now(), now(), $1, 'AUTO_APPROVED', 0, '{}', 'healed: shell for legacy verified owner', now())`, subID)
		}
		if err == nil {
			_, err = tx.Exec(`INSERT INTO audit_entries
				(created_at, submission_id, owner_kind, owner_id, outcome, actor, detail)
				VALUES (now(), $1, 'INDIVIDUAL', $2, 'AUTO_APPROVED', 'kyc-heal', 'created submission shell')`, subID, userID)
		}
		if err != nil {
			tx.Rollback()
			log.Printf("heal user_%d: %v", userID, err)
			os.Exit(2)
		}
		if err := tx.Commit(); err != nil {
			log.Printf("commit user_%d: %v", userID, err)
			os.Exit(2)
		}
		fmt.Printf("created submission shell %s for user_%d\n", ref, userID)
	}
	return n
}

// healVerifiedFlags realigns users.verified with the latest terminal
// submission outcome.
func healVerifiedFlags(db *sql.DB, dryRun bool) int {
	rows, err := db.Query(`SELECT u.id, s.status FROM users u
		JOIN LATERAL (
		  SELECT status FROM kyc_submissions
		  WHERE owner_kind = 'INDIVIDUAL' AND owner_id = u.id AND status IN ('APPROVED','REJECTED')
		  ORDER BY id DESC LIMIT 1
		) s ON true
		WHERE u.verified <> (s.status = 'APPROVED')`)
	if err != nil {
		log.Printf("query flags: %v", err)
		os.Exit(2)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var userID int64
		var status string
		if err := rows.Scan(&userID, &status); err != nil {
			log.Printf("scan: %v", err)
			continue
		}
		n++
		want := status == "APPROVED"
		if dryRun {
			fmt.Printf("would set user_%d verified=%v\n", userID, want)
			continue
		}
		if _, err := db.Exec(`UPDATE users SET verified = $1, updated_at = now() WHERE id = $2`, want, userID); err != nil {
			log.Printf("update user_%d: %v", userID, err)
			os.Exit(2)
		}
		fmt.Printf("set user_%d verified=%v\n", userID, want)
	}
	return n
}
