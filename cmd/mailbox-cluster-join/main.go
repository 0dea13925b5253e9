// Command mailbox-cluster-join verifies a signed join token and records the
// presenting agent in the shared agent registry, so an operator can grant a
// new agent entry into the mailbox cluster without handing out Postgres or
// Redis credentials directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/nkllon/beast-mailbox/internal/registry"
	"github.com/nkllon/beast-mailbox/internal/registry/migrations"
)

func main() {
	agentID := flag.String("agent-id", "", "Agent id joining the cluster")
	token := flag.String("token", "", "PASETO v4.public join token")
	publicKeyHex := flag.String("public-key", "", "Hex-encoded Ed25519 public key the token is signed with")
	registryDSN := flag.String("registry-dsn", "", "Postgres DSN for the agent registry")
	runMigrations := flag.Bool("migrate", false, "Apply registry schema migrations before joining")
	flag.Parse()

	if *agentID == "" || *token == "" || *publicKeyHex == "" || *registryDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --agent-id, --token, --public-key and --registry-dsn are all required")
		os.Exit(1)
	}

	logger := slog.Default()

	publicKey, err := paseto.NewV4AsymmetricPublicKeyFromHex(*publicKeyHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid public key: %v\n", err)
		os.Exit(1)
	}

	parser := paseto.NewParser()
	parser.AddRule(paseto.NotExpired())

	parsed, err := parser.ParseV4Public(publicKey, *token, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: token verification failed: %v\n", err)
		os.Exit(1)
	}

	claimedAgent, err := parsed.GetString("agent_id")
	if err != nil || claimedAgent != *agentID {
		fmt.Fprintln(os.Stderr, "Error: token agent_id claim does not match --agent-id")
		os.Exit(1)
	}

	ctx := context.Background()

	if *runMigrations {
		if err := migrations.Run(*registryDSN); err != nil {
			fmt.Fprintf(os.Stderr, "Error: migration failed: %v\n", err)
			os.Exit(1)
		}
	}

	reg, err := registry.NewAgentRegistry(ctx, *registryDSN, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect to registry: %v\n", err)
		os.Exit(1)
	}
	defer reg.Close()

	before, existed, err := reg.Lookup(ctx, *agentID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to look up agent: %v\n", err)
		os.Exit(1)
	}

	if err := reg.Touch(ctx, *agentID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to record join: %v\n", err)
		os.Exit(1)
	}

	if existed {
		fmt.Printf("agent %s rejoined the cluster (first joined %s, %d prior starts)\n",
			*agentID, before.FirstStarted.Format(time.RFC3339), before.StartCount)
		return
	}
	fmt.Printf("agent %s joined the cluster for the first time\n", *agentID)
}
