// Command provision runs the one-shot platform setup: webhook and page
// subscriptions, the Messenger profile, whitelisted domains and personas.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/pscheid92/pagegate/internal/adapter/graph"
	"github.com/pscheid92/pagegate/internal/app"
	"github.com/pscheid92/pagegate/internal/domain"
	"github.com/pscheid92/pagegate/internal/platform/config"
	"github.com/pscheid92/pagegate/internal/platform/logging"
)

const provisionTimeout = 2 * time.Minute

func main() {
	mode := flag.String("mode", app.ModeAll, "what to set up: "+strings.Join(app.Modes, "|"))
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	client := graph.New(graph.Config{
		APIURL:         cfg.APIURL(),
		AppID:          cfg.AppID,
		AppAccessToken: cfg.AppAccessToken(),
		VerifyToken:    cfg.VerifyToken,
		WebhookURL:     cfg.WebhookURL(),
		TargetAppID:    cfg.TargetAppID,
		Timeout:        cfg.GraphTimeout,
	}, cfg.Credentials())

	provisioner := app.NewProvisioner(client, app.ProvisionerConfig{
		ShopURL:            cfg.ShopURL,
		WhitelistedDomains: cfg.WhitelistedDomains(),
		Personas:           cfg.Personas(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, provisionTimeout)
	defer cancel()

	steps, err := provisioner.Run(ctx, *mode)
	if err != nil {
		slog.Error("Provisioning failed", "mode", *mode, "error", err)
		os.Exit(2)
	}

	failed := false
	for _, step := range steps {
		printStep(step)
		failed = failed || !step.OK()
	}
	if failed {
		os.Exit(1)
	}
}

func printStep(step app.Step) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	if step.OK() {
		green.Print("✓ ")
	} else {
		red.Print("✗ ")
	}
	fmt.Println(step.Name)
	if step.Err != nil {
		red.Printf("    %v\n", step.Err)
	}
	for _, res := range step.Results {
		switch {
		case res.OK:
			fmt.Printf("    page %s: ok\n", res.PageID)
		case res.Err != nil:
			red.Printf("    page %s: %v\n", res.PageID, res.Err)
		default:
			red.Printf("    page %s: status %d\n", res.PageID, res.Status)
		}
	}
	printPersonaHints(step.PersonaIDs)
}

// printPersonaHints prints, per page, the PERSONA_<ROLE> variables that pin
// each role to the persona ids found or created. Persona ids are page-scoped,
// so a deployment serving several pages needs one set per page.
func printPersonaHints(ids map[string]map[string]string) {
	if len(ids) == 0 {
		return
	}
	yellow := color.New(color.FgYellow)
	yellow.Println("    Set these variables to route handovers to the personas:")
	for _, pageID := range slices.Sorted(maps.Keys(ids)) {
		fmt.Printf("    page %s:\n", pageID)
		for _, role := range domain.Roles {
			id, ok := ids[pageID][domain.DefaultRoleNames[role]]
			if !ok {
				continue
			}
			fmt.Printf("      PERSONA_%s=%s\n", strings.ToUpper(string(role)), id)
		}
	}
}
