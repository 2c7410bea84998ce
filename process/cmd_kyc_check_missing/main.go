// kyc-check-missing scans for inconsistent KYC state: submissions missing
// required documents, decided submissions without analyses or decision
// records, and verified flags that disagree with the latest decision.
//
// Exit codes: 0 consistent, 1 inconsistencies found, 2 operational failure.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	verbose := flag.Bool("v", false, "print every checked owner, not only problems")
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

	problems := 0
	checks := []struct {
		name  string
		query string
	}{
		{
			"submission missing required documents",
			`SELECT s.submission_id FROM kyc_submissions s
			 WHERE s.deleted_at IS NULL AND (
			   SELECT count(*) FROM kyc_documents d WHERE d.submission_id = s.id
			     AND d.role IN ('ID_FRONT','ID_BACK','SELFIE')
			 ) < 3 AND s.owner_kind = 'INDIVIDUAL'`,
		},
		{
			"decided submission with unanalyzed documents",
			`SELECT DISTINCT s.submission_id FROM kyc_submissions s
			 JOIN kyc_documents d ON d.submission_id = s.id
			 LEFT JOIN document_analyses a ON a.document_id = d.id
			 WHERE s.status IN ('APPROVED','REJECTED') AND a.id IS NULL`,
		},
		{
			"terminal submission without decision record",
			`SELECT s.submission_id FROM kyc_submissions s
			 LEFT JOIN decision_records r ON r.submission_id = s.id
			 WHERE s.status IN ('APPROVED','REJECTED') AND r.id IS NULL AND s.reviewed_by_id IS NULL`,
		},
		{
			"verified user without approved submission",
			`SELECT 'user_' || u.id FROM users u
			 WHERE u.verified AND NOT EXISTS (
			   SELECT 1 FROM kyc_submissions s
			   WHERE s.owner_kind = 'INDIVIDUAL' AND s.owner_id = u.id AND s.status = 'APPROVED')`,
		},
		{
			"approved submission with unverified owner",
			`SELECT s.submission_id FROM kyc_submissions s
			 JOIN users u ON u.id = s.owner_id
			 WHERE s.owner_kind = 'INDIVIDUAL' AND s.status = 'APPROVED' AND NOT u.verified`,
		},
	}

	for _, chk := range checks {
		rows, err := db.Query(chk.query)
		if err != nil {
			log.Printf("query (%s): %v", chk.name, err)
			os.Exit(2)
		}
		n := 0
		for rows.Next() {
			var ref string
			if err := rows.Scan(&ref); err != nil {
				log.Printf("scan: %v", err)
				continue
			}
			fmt.Printf("%s: %s\n", chk.name, ref)
			n++
		}
		rows.Close()
		problems += n
		if *verbose && n == 0 {
			fmt.Printf("%s: ok\n", chk.name)
		}
	}

	if problems > 0 {
		fmt.Printf("found %d inconsistencies\n", problems)
		os.Exit(1)
	}
	fmt.Println("kyc state consistent")
}
