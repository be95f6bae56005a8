package cli

import "fmt"

func printUsage() {
	fmt.Println("TalentSift Research Tracker CLI")
	fmt.Println("Usage:")
	fmt.Println("  research-track submit --linkedin=URL --cv=FILE [--jd=TEXT | --jd-file=FILE] [--watch]")
	fmt.Println("  research-track watch <run-id>")
	fmt.Println("  research-track status <run-id>")
	fmt.Println("  research-track results <run-id>")
	fmt.Println("  research-track cancel <run-id>")
	fmt.Println("  research-track history [--limit=N]")
	fmt.Println("  research-track health")
	fmt.Println()
	fmt.Println("Submission:")
	fmt.Println("  --linkedin=URL       Candidate LinkedIn profile URL")
	fmt.Println("  --cv=FILE            CV document, max 10MB (txt, pdf, doc, docx)")
	fmt.Println("  --jd=TEXT            Job description text, at least 100 characters")
	fmt.Println("  --jd-file=FILE       Job description document, max 5MB")
	fmt.Println("  --watch              Keep watching the run after submission")
	fmt.Println()
	fmt.Println("Common flags:")
	fmt.Println("  --api=URL            Research API base URL (default http://localhost:8000)")
	fmt.Println("  --limit=N            Max history rows to print")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  RESEARCH_API_URL             Research API base URL")
	fmt.Println("  RESEARCH_PLAN_PATH           YAML stage plan override")
	fmt.Println("  RESEARCH_HISTORY_BACKEND     History backend: sqlite (default), redis, or hybrid")
	fmt.Println("  RESEARCH_SQLITE_PATH         SQLite history file (default ./.research-track/history.db)")
	fmt.Println("  RESEARCH_REDIS_ADDR          Redis address (default 127.0.0.1:6379)")
	fmt.Println("  RESEARCH_REDIS_PASSWORD      Redis password")
	fmt.Println("  RESEARCH_REDIS_DB            Redis database number")
	fmt.Println("  RESEARCH_REDIS_TTL           Redis record TTL (default 720h)")
	fmt.Println("  RESEARCH_HISTORY_LIMIT       Persisted history size (default 10)")
	fmt.Println("  RESEARCH_OBSERVE_ENABLED     Persist an event trace (default true)")
	fmt.Println("  RESEARCH_TRACE_DB_PATH       Trace db file (default ./.research-track/trace.db)")
}
