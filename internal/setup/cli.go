// Package setup provides the command-line interface for the curator. All
// semantics live in the internal packages; this is argument handling and
// wiring only.
package setup

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/genepanel-curator/internal/association"
	"github.com/genepanel-curator/internal/config"
	"github.com/genepanel-curator/internal/database"
	"github.com/genepanel-curator/internal/domain"
	"github.com/genepanel-curator/internal/genesync"
	"github.com/genepanel-curator/internal/importer"
	"github.com/genepanel-curator/internal/projection"
	"github.com/genepanel-curator/internal/store"
	"github.com/genepanel-curator/internal/testdirectory"
	"github.com/genepanel-curator/pkg/panelsource"
)

// CLI dispatches curator subcommands.
type CLI struct {
	manager *config.Manager
	log     *logrus.Logger
}

// NewCLI loads configuration and builds the logger.
func NewCLI() (*CLI, error) {
	manager, err := config.NewManager()
	if err != nil {
		return nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &CLI{
		manager: manager,
		log:     newLogger(manager.GetConfig().Logging),
	}, nil
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// Run executes one subcommand.
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	switch args[0] {
	case "panels":
		return c.runPanels(ctx, args[1:])
	case "td":
		return c.runTestDirectory(ctx, args[1:])
	case "ci":
		return c.runCI(ctx, args[1:])
	case "genes":
		return c.runGenes(ctx, args[1:])
	case "review":
		return c.runReview(ctx, args[1:])
	case "generate":
		return c.runGenerate(ctx, args[1:])
	case "migrate":
		return c.runMigrate(args[1:])
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		return c.showHelp()
	}
}

func (c *CLI) showHelp() error {
	help := `
Gene Panel Curator

Usage:
  curator <command> [options]

Commands:
  panels import --id <id> [--version <v>]   Import one panel from the registry
  panels import-all                         Import every signed-off panel
  td import <file> --release <label> [--force]
                                            Reconcile a test directory release
  ci activate   --rcode <code>|--ci-id <id>
                --panel-id <id>|--panel-name <name> --user <name>
  ci deactivate (same selectors)            Manually retire an association
  genes sync <file>                         Apply an HGNC symbol download
  review list                               Show everything pending review
  generate genepanels                       Emit the genepanels projection
  generate g2t                              Emit the gene/transcript gene list
  migrate up|down                           Apply or roll back schema migrations

Configuration comes from config.yaml or CURATOR_* environment variables.
`
	fmt.Println(help)
	return nil
}

// openStore opens the configured database and brings the schema current.
func (c *CLI) openStore() (*store.Store, func(), error) {
	db, err := database.Open(c.manager.DatabaseConfig(), c.log)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(db, c.log); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store.New(db, c.log), func() { db.Close() }, nil
}

func (c *CLI) newImporter(s *store.Store) *importer.Importer {
	cfg := c.manager.GetConfig().Import
	return importer.New(s, association.NewManager(c.log), importer.Config{
		GreenConfidence: cfg.GreenConfidence,
		OmitHGNCIDs:     cfg.OmitHGNCIDs,
	}, c.log)
}

func (c *CLI) newPanelSource() (domain.PanelSource, error) {
	cfg := c.manager.GetConfig().PanelSource
	return panelsource.NewClient(panelsource.Config{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		CacheSize: cfg.CacheSize,
	})
}

func (c *CLI) runPanels(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("panels: expected import or import-all")
	}

	source, err := c.newPanelSource()
	if err != nil {
		return err
	}
	s, closeStore, err := c.openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	im := c.newImporter(s)

	switch args[0] {
	case "import":
		var id, version string
		for i := 1; i < len(args); i++ {
			switch args[i] {
			case "--id":
				if i+1 < len(args) {
					id = args[i+1]
					i++
				}
			case "--version":
				if i+1 < len(args) {
					version = args[i+1]
					i++
				}
			}
		}
		if id == "" {
			return fmt.Errorf("panels import: --id is required")
		}

		payload, err := source.FetchPanel(ctx, id, version)
		if err != nil {
			return err
		}
		result, err := im.ImportPanel(ctx, payload)
		if err != nil {
			return err
		}
		fmt.Printf("Imported panel %s v%s: %d genes linked, %d skipped, %d regions\n",
			id, payload.Version, result.GenesLinked, result.GenesSkipped, result.RegionsLinked)
		return nil

	case "import-all":
		payloads, err := source.FetchAllCurrentPanels(ctx)
		if err != nil {
			return err
		}
		imported, failed := im.ImportAll(ctx, payloads)
		fmt.Printf("Imported %d panels, %d failed\n", imported, failed)
		return nil

	default:
		return fmt.Errorf("panels: unknown subcommand %s", args[0])
	}
}

func (c *CLI) runTestDirectory(ctx context.Context, args []string) error {
	if len(args) < 2 || args[0] != "import" {
		return fmt.Errorf("td: expected import <file> --release <label> [--force]")
	}

	file := args[1]
	var releaseLabel string
	var force bool
	for i := 2; i < len(args); i++ {
		switch args[i] {
		case "--release":
			if i+1 < len(args) {
				releaseLabel = args[i+1]
				i++
			}
		case "--force":
			force = true
		}
	}
	if releaseLabel == "" {
		return fmt.Errorf("td import: --release is required")
	}

	td, err := testdirectory.ParseFile(file, releaseLabel)
	if err != nil {
		return err
	}

	s, closeStore, err := c.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	reconciler := testdirectory.NewReconciler(s, association.NewManager(c.log), c.log)
	result, err := reconciler.ImportRelease(ctx, td, force)
	if err != nil {
		return err
	}
	fmt.Printf("Release %s: %d indications, %d links asserted, %d flagged, %d panels unknown\n",
		releaseLabel, result.Indications, result.LinksAsserted, result.LinksFlagged, result.PanelsSkipped)
	return nil
}

func (c *CLI) runCI(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("ci: expected activate or deactivate")
	}
	action := args[0]
	if action != "activate" && action != "deactivate" {
		return fmt.Errorf("ci: unknown subcommand %s", action)
	}

	var rcode, ciID, panelID, panelName, user string
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--rcode":
			if i+1 < len(args) {
				rcode = args[i+1]
				i++
			}
		case "--ci-id":
			if i+1 < len(args) {
				ciID = args[i+1]
				i++
			}
		case "--panel-id":
			if i+1 < len(args) {
				panelID = args[i+1]
				i++
			}
		case "--panel-name":
			if i+1 < len(args) {
				panelName = args[i+1]
				i++
			}
		case "--user":
			if i+1 < len(args) {
				user = args[i+1]
				i++
			}
		}
	}
	if user == "" {
		return fmt.Errorf("ci %s: --user is required", action)
	}

	s, closeStore, err := c.openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	manager := association.NewManager(c.log)

	return s.WithTx(ctx, func(tx *store.Tx) error {
		ci, err := resolveCI(ctx, tx, rcode, ciID)
		if err != nil {
			return err
		}
		panel, err := resolvePanel(ctx, tx, panelID, panelName)
		if err != nil {
			return err
		}

		kind := domain.LinkPanel
		if panel.Type == domain.PanelTypeSuper {
			kind = domain.LinkSuperPanel
		}

		if action == "activate" {
			if _, err := manager.Activate(ctx, tx, kind, ci.ID, panel.ID, user); err != nil {
				return err
			}
			fmt.Printf("Activated %s -> %s v%s\n", ci.RCode, panel.Name, panel.Version)
			return nil
		}
		if err := manager.Deactivate(ctx, tx, kind, ci.ID, panel.ID, user); err != nil {
			return err
		}
		fmt.Printf("Deactivated %s -> %s v%s\n", ci.RCode, panel.Name, panel.Version)
		return nil
	})
}

// resolveCI turns a selector into exactly one clinical indication, raising
// ambiguity rather than guessing.
func resolveCI(ctx context.Context, tx *store.Tx, rcode, ciID string) (*domain.ClinicalIndication, error) {
	switch {
	case ciID != "":
		id, err := strconv.ParseInt(ciID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ci id %q", ciID)
		}
		return tx.CIByID(ctx, id)
	case rcode != "":
		return tx.ResolveCIByRCode(ctx, rcode)
	default:
		return nil, fmt.Errorf("a clinical indication selector is required (--rcode or --ci-id)")
	}
}

// resolvePanel turns a selector into exactly one panel. A name shared by
// several distinct panels is ambiguous; several versions of one panel
// resolve to the newest.
func resolvePanel(ctx context.Context, tx *store.Tx, panelID, panelName string) (*domain.Panel, error) {
	switch {
	case panelID != "":
		id, err := strconv.ParseInt(panelID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid panel id %q", panelID)
		}
		return tx.PanelByID(ctx, id)
	case panelName != "":
		panels, err := tx.PanelsByName(ctx, panelName)
		if err != nil {
			return nil, err
		}
		if len(panels) == 0 {
			return nil, fmt.Errorf("panel %q: %w", panelName, domain.ErrNotFound)
		}
		for _, p := range panels[1:] {
			if p.ExternalID != panels[0].ExternalID {
				return nil, &domain.AmbiguousError{Kind: "panel", Selector: panelName, Matches: len(panels)}
			}
		}
		return panels[0], nil
	default:
		return nil, fmt.Errorf("a panel selector is required (--panel-id or --panel-name)")
	}
}

func (c *CLI) runGenes(ctx context.Context, args []string) error {
	if len(args) < 2 || args[0] != "sync" {
		return fmt.Errorf("genes: expected sync <file>")
	}

	f, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("open symbol file: %w", err)
	}
	defer f.Close()

	records, err := genesync.ParseTSV(f)
	if err != nil {
		return err
	}

	s, closeStore, err := c.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := genesync.New(s, c.log).Apply(ctx, records)
	if err != nil {
		return err
	}
	fmt.Printf("Symbol sync: %d updated, %d unchanged, %d unknown\n",
		result.Updated, result.Unchanged, result.Unknown)
	return nil
}

func (c *CLI) runReview(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "list" {
		return fmt.Errorf("review: expected list")
	}

	s, closeStore, err := c.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	review, err := projection.New(s, c.log).Pending(ctx)
	if err != nil {
		return err
	}

	if len(review.Associations) == 0 && len(review.PanelGenes) == 0 {
		fmt.Println("Nothing pending review")
		return nil
	}

	for _, item := range review.Associations {
		fmt.Printf("[%s] %s (%s) -> %s v%s: %s\n",
			item.Kind, item.RCode, item.CIName, item.PanelName, item.PanelVersion, item.Reason)
	}
	for _, link := range review.PanelGenes {
		fmt.Printf("[gene] %s v%s: %s (%s) confidence=%s active=%t\n",
			link.PanelName, link.PanelVersion, link.Symbol, link.HGNCID, link.Confidence, link.Active)
	}
	return nil
}

func (c *CLI) runGenerate(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("generate: expected genepanels or g2t")
	}

	s, closeStore, err := c.openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	proj := projection.New(s, c.log)

	rows, err := proj.GenePanels(ctx)
	if err != nil {
		return err
	}

	switch args[0] {
	case "genepanels":
		for _, r := range rows {
			fmt.Printf("%s\t%s\t%s\t%s\t%s\t%s\n",
				r.RCode, r.CIName, r.PanelName, r.PanelVersion, r.HGNCID, r.Symbol)
		}
		return nil
	case "g2t":
		seen := make(map[string]bool)
		for _, r := range rows {
			if seen[r.HGNCID] {
				continue
			}
			seen[r.HGNCID] = true
			fmt.Printf("%s\t%s\n", r.HGNCID, r.Symbol)
		}
		return nil
	default:
		return fmt.Errorf("generate: unknown target %s", args[0])
	}
}

func (c *CLI) runMigrate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("migrate: expected up or down")
	}

	db, err := database.Open(c.manager.DatabaseConfig(), c.log)
	if err != nil {
		return err
	}
	defer db.Close()

	switch args[0] {
	case "up":
		return database.Migrate(db, c.log)
	case "down":
		return database.MigrateDown(db, c.log)
	default:
		return fmt.Errorf("migrate: unknown direction %s", args[0])
	}
}
