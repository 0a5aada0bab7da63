package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/schoolhub/bulkops-backend/internal/config"
	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/service"
)

func main() {
	var (
		perms        string
		ttl          time.Duration
		promptSecret bool
	)
	flag.StringVar(&perms, "perms", "", "Comma-separated permissions (default: all)")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime (default: JWT_EXPIRY_HOURS)")
	flag.BoolVar(&promptSecret, "prompt-secret", false, "Read the signing secret from the terminal instead of JWT_SECRET")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	secret := cfg.JWTSecret
	if ttl <= 0 {
		ttl = cfg.JWTExpiry
	}

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Issue Operator Token ===")

	fmt.Print("Enter Subject (operator name or email): ")
	subject, _ := reader.ReadString('\n')
	subject = strings.TrimSpace(subject)
	if subject == "" {
		fmt.Println("Error: Subject is required")
		os.Exit(1)
	}

	if promptSecret {
		fmt.Print("Enter Signing Secret: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // Newline after secret input
		if err != nil {
			fmt.Println("Error reading secret")
			os.Exit(1)
		}
		secret = string(raw)
	}
	if len(secret) < 16 {
		fmt.Println("Error: Signing secret must be at least 16 characters")
		os.Exit(1)
	}

	granted, err := parsePermissions(perms)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	token, err := service.NewTokenService(secret, ttl).Generate(subject, granted)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nToken for '%s' valid for %s with [%s]:\n%s\n", subject, ttl, strings.Join(granted, ", "), token)
}

func parsePermissions(raw string) ([]string, error) {
	known := make(map[string]bool, len(model.AllPermissions))
	all := make([]string, 0, len(model.AllPermissions))
	for _, p := range model.AllPermissions {
		known[string(p)] = true
		all = append(all, string(p))
	}
	if strings.TrimSpace(raw) == "" {
		return all, nil
	}

	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !known[p] {
			return nil, fmt.Errorf("unknown permission %q (known: %s)", p, strings.Join(all, ", "))
		}
		out = append(out, p)
	}
	return out, nil
}
