// ABOUTME: Admin CLI for vine-gateway org and membership management
// ABOUTME: Talks to the gateway HTTP API through the Go client SDK

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/taskvine/vine-gateway/client"
)

const banner = `
        _                             _           _
 __   _(_)_ __   ___        __ _  __| |_ __ ___ (_)_ __
 \ \ / / | '_ \ / _ \_____ / _' |/ _' | '_ ' _ \| | '_ \
  \ V /| | | | |  __/_____| (_| | (_| | | | | | | | | | |
   \_/ |_|_| |_|\___|      \__,_|\__,_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	c, err := buildClient()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "me":
		err = cmdMe(ctx, c)
	case "org":
		err = cmdOrg(c, args)
	case "members":
		err = cmdMembers(ctx, c, args)
	case "publish":
		err = cmdPublish(ctx, c, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: vine-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  me                            Show your session in the active org")
	fmt.Println("  org                           Show the active org")
	fmt.Println("  org switch <org-id>           Switch the active org")
	fmt.Println("  members                       List org members")
	fmt.Println("  members add <user-id> <role>  Add an existing user to the org")
	fmt.Println("  members role <user-id> <role> Change a member's role")
	fmt.Println("  members remove <user-id>      Remove a member from the org")
	fmt.Println("  publish <type> <entity-id>    Publish a realtime event")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  VINE_GATEWAY_URL  Gateway base URL (default: http://localhost:8080)")
	fmt.Println("  VINE_TOKEN        JWT authentication token (or ~/.config/vine/token)")
	fmt.Println("  VINE_ORG_ID       Active org (otherwise the last switched org is used)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  export VINE_TOKEN=\"eyJhbG...\"")
	fmt.Println("  vine-admin org switch 6f1c...")
	fmt.Println("  vine-admin me")
	fmt.Println("  vine-admin members add 9a2e... member")
	fmt.Println()
}

// buildClient assembles an SDK client from environment and the saved
// active-org file.
func buildClient() (*client.Client, error) {
	baseURL := os.Getenv("VINE_GATEWAY_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	token := os.Getenv("VINE_TOKEN")
	if token == "" {
		token = readTokenFile()
	}
	if token == "" {
		return nil, fmt.Errorf("VINE_TOKEN environment variable is required")
	}

	c := client.New(baseURL, client.Options{
		Persistence: client.NewFilePersistence(activeOrgPath()),
	})
	c.Credentials.Set(client.Credential{Token: token})

	// VINE_ORG_ID overrides the persisted org for this invocation.
	if env := os.Getenv("VINE_ORG_ID"); env != "" {
		orgID, err := uuid.Parse(env)
		if err != nil {
			return nil, fmt.Errorf("invalid VINE_ORG_ID: %w", err)
		}
		if err := c.Tenant.Set(orgID); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "vine")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".config", "vine")
}

func activeOrgPath() string {
	return filepath.Join(configDir(), "active-org")
}

// readTokenFile reads the token written by vine-gateway bootstrap.
func readTokenFile() string {
	data, err := os.ReadFile(filepath.Join(configDir(), "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func cmdMe(ctx context.Context, c *client.Client) error {
	session, err := c.Me(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	fmt.Println()
	cyan.Println("  Session")
	cyan.Println("  -------")
	fmt.Printf("  Org ID:   %s\n", session.OrgID)
	fmt.Printf("  User ID:  %s\n", session.UserID)
	green.Printf("  Role:     %s\n", session.Role)
	fmt.Printf("  Grants:   %s\n", strings.Join(session.Capabilities, ", "))
	fmt.Println()
	return nil
}

func cmdOrg(c *client.Client, args []string) error {
	if len(args) == 0 {
		orgID, ok := c.Tenant.Get()
		if !ok {
			fmt.Println("no active org; run: vine-admin org switch <org-id>")
			return nil
		}
		fmt.Printf("active org: %s\n", orgID)
		return nil
	}

	if args[0] != "switch" || len(args) != 2 {
		return fmt.Errorf("usage: vine-admin org switch <org-id>")
	}
	orgID, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid org id: %w", err)
	}
	if err := c.SwitchTenant(orgID); err != nil {
		return err
	}
	color.Green("active org is now %s\n", orgID)
	return nil
}

func cmdMembers(ctx context.Context, c *client.Client, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		return cmdMembersList(ctx, c)
	}

	switch args[0] {
	case "add":
		if len(args) != 3 {
			return fmt.Errorf("usage: vine-admin members add <user-id> <role>")
		}
		userID, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		if err := c.AddMember(ctx, userID, args[2]); err != nil {
			return err
		}
		color.Green("added %s as %s\n", userID, args[2])
		return nil
	case "role":
		if len(args) != 3 {
			return fmt.Errorf("usage: vine-admin members role <user-id> <role>")
		}
		userID, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		if err := c.UpdateMemberRole(ctx, userID, args[2]); err != nil {
			return err
		}
		color.Green("%s is now %s\n", userID, args[2])
		return nil
	case "remove":
		if len(args) != 2 {
			return fmt.Errorf("usage: vine-admin members remove <user-id>")
		}
		userID, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		if err := c.RemoveMember(ctx, userID); err != nil {
			return err
		}
		color.Green("removed %s\n", userID)
		return nil
	default:
		return fmt.Errorf("unknown members subcommand: %s", args[0])
	}
}

func cmdMembersList(ctx context.Context, c *client.Client) error {
	members, err := c.ListMembers(ctx)
	if err != nil {
		return err
	}

	if len(members) == 0 {
		fmt.Println("no members")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "USER ID\tEMAIL\tNAME\tROLE\tJOINED")
	for _, m := range members {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.UserID, m.Email, m.DisplayName, m.Role, m.JoinedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func cmdPublish(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: vine-admin publish <type> <entity-id> [key=value ...]")
	}
	entityID, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid entity id: %w", err)
	}

	payload := make(map[string]string)
	for _, kv := range args[2:] {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("payload entries must be key=value, got %q", kv)
		}
		payload[parts[0]] = parts[1]
	}

	eventID, err := c.PublishEvent(ctx, args[0], entityID, payload)
	if err != nil {
		return err
	}
	color.Green("published %s\n", eventID)
	return nil
}
