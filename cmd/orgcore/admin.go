package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/arenahq/orgcore/internal/auth"
	"github.com/arenahq/orgcore/internal/db"
	"github.com/arenahq/orgcore/internal/directory"
	"github.com/arenahq/orgcore/internal/orgs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	switch args[0] {
	case "policy":
		return runPolicy(os.Stdout, access.DefaultPolicy())
	case "migrate":
		return runMigrate(args[1:])
	case "check-invariants":
		return runCheckInvariants(args[1:])
	case "search":
		return runSearch(args[1:])
	case "token":
		return runToken(os.Stdout, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  orgcore admin policy")
	fmt.Fprintln(os.Stderr, "  orgcore admin migrate [--status] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  orgcore admin check-invariants [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  orgcore admin search --term <prefix> [--has-org true|false|any] [--pages N] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  orgcore admin token --user-id <uuid> --username <name> [--ttl 1h] [--secret <s>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Notes:")
	fmt.Fprintln(os.Stderr, "  - --db-dsn defaults to OC_DB_DSN, --secret to OC_JWT_SECRET.")
}

// runPolicy prints which roles may perform each action.
func runPolicy(out io.Writer, table *access.PolicyTable) int {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTION\tSCOPE\tROLES")
	for _, action := range table.Actions() {
		rule, _ := table.Rule(action)
		roles := make([]string, 0, len(rule.Roles))
		for _, role := range rule.Roles {
			roles = append(roles, string(role))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", action, rule.Scope, strings.Join(roles, ","))
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write policy: %v\n", err)
		return 1
	}
	return 0
}

func dsnFlag(fs *flag.FlagSet) *string {
	return fs.String("db-dsn", "", "Postgres DSN (defaults to OC_DB_DSN)")
}

func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func connect(ctx context.Context, dsn string) (*pgxpool.Pool, bool) {
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("OC_DB_DSN"))
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set OC_DB_DSN)")
		return nil, false
	}
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return nil, false
	}
	return pool, true
}

func runMigrate(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	status := fs.Bool("status", false, "List migrations instead of applying them")
	dsn := dsnFlag(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, ok := connect(ctx, *dsn)
	if !ok {
		return 1
	}
	defer pool.Close()

	if *status {
		statuses, err := db.Status(ctx, pool)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read migration status: %v\n", err)
			return 1
		}
		for _, s := range statuses {
			if s.Pending() {
				fmt.Printf("pending  %s\n", s.Version)
				continue
			}
			fmt.Printf("applied  %s  %s\n", s.Version, s.AppliedAt.Format(time.RFC3339))
		}
		return 0
	}

	if err := db.RunMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		return 1
	}
	fmt.Println("Migrations applied.")
	return 0
}

func runCheckInvariants(args []string) int {
	fs := flag.NewFlagSet("check-invariants", flag.ContinueOnError)
	dsn := dsnFlag(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, ok := connect(ctx, *dsn)
	if !ok {
		return 1
	}
	defer pool.Close()

	m := orgs.NewManager(orgs.NewPgStore(pool), access.MustNewEngine(access.DefaultPolicy()))
	violations, err := m.VerifyInvariants(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invariant check failed: %v\n", err)
		return 1
	}
	if len(violations) == 0 {
		fmt.Println("All organizations are consistent.")
		return 0
	}
	for _, v := range violations {
		fmt.Printf("%s  %v\n", v.OrgID, v.Err)
	}
	return 3
}

func runSearch(args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	term := fs.String("term", "", "Username or display name prefix")
	hasOrg := fs.String("has-org", "", "Membership filter: true, false or any (default false)")
	pages := fs.Int("pages", 1, "Number of pages to fetch")
	limit := fs.Int("limit", directory.DefaultPageSize, "Page size")
	dsn := dsnFlag(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	query := directory.Query{Term: *term, PageSize: *limit}
	switch *hasOrg {
	case "":
	case "any":
		query.IncludeMembers = true
	case "true", "false":
		v := *hasOrg == "true"
		query.HasOrg = &v
	default:
		fmt.Fprintln(os.Stderr, "--has-org must be true, false or any")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, ok := connect(ctx, *dsn)
	if !ok {
		return 1
	}
	defer pool.Close()

	results, err := collectPages(ctx, directory.NewService(directory.NewPgBackend(pool)), query, *pages)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		return 1
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER ID\tUSERNAME\tDISPLAY NAME\tHAS ORG")
	for _, c := range results.Candidates() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", c.UserID, c.Username, c.DisplayName, c.HasOrg)
	}
	_ = tw.Flush()
	if results.HasMore() {
		fmt.Printf("\nMore results available (cursor %s)\n", results.NextCursor())
	}
	return 0
}

// collectPages follows next cursors until pages have been read or the
// directory runs out.
func collectPages(ctx context.Context, s *directory.Service, query directory.Query, pages int) (*directory.Results, error) {
	results := directory.NewResults()
	for i := 0; i < pages; i++ {
		token := results.Begin()
		page, err := s.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		results.Apply(token, page)
		if !page.HasMore {
			break
		}
		query.Cursor = page.NextCursor
		query.Page = 0
	}
	return results, nil
}

func runToken(out io.Writer, args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user-id", "", "User ID (random if empty)")
	username := fs.String("username", "", "Username")
	displayName := fs.String("display-name", "", "Display name")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	secret := fs.String("secret", "", "Signing secret (defaults to OC_JWT_SECRET)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	if strings.TrimSpace(*username) == "" {
		fmt.Fprintln(os.Stderr, "--username is required")
		return 2
	}
	if *secret == "" {
		*secret = os.Getenv("OC_JWT_SECRET")
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "--secret is required (or set OC_JWT_SECRET)")
		return 2
	}

	id := uuid.New()
	if *userID != "" {
		parsed, err := uuid.Parse(*userID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --user-id: %v\n", err)
			return 2
		}
		id = parsed
	}

	token, err := auth.CreateToken(auth.Identity{
		UserID:      id,
		Username:    strings.TrimSpace(*username),
		DisplayName: *displayName,
	}, *secret, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create token: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, token)
	return 0
}
