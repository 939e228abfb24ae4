package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/palstore/internal/catalog"
	"github.com/dmitrijs2005/palstore/internal/config"
	"github.com/dmitrijs2005/palstore/internal/logging"
	"github.com/dmitrijs2005/palstore/internal/models"
	"github.com/dmitrijs2005/palstore/internal/retryx"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the palstore command tree. Flags overlay the config that
// was already loaded from defaults and environment.
func NewRootCmd(cfg *config.Config, log logging.Logger) *cobra.Command {
	var app *App

	root := &cobra.Command{
		Use:           "palstore",
		Short:         "Local-first pal store with catalog sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("data-dir") && !cmd.Flags().Changed("db") {
				cfg.DatabasePath = filepath.Join(cfg.DataDir, "palstore.db")
			}
			a, err := NewApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app == nil {
				return nil
			}
			return app.Close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	pf.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "sqlite database path")
	pf.StringVar(&cfg.CatalogURL, "catalog-url", cfg.CatalogURL, "catalog service base URL")
	pf.StringVar(&cfg.AuthToken, "token", cfg.AuthToken, "auth token")
	pf.StringVar(&cfg.UserID, "user", cfg.UserID, "user id")

	root.AddCommand(
		newListCmd(&app),
		newSyncCmd(&app),
		newStatusCmd(&app),
		newImportCmd(&app),
		newDownloadCmd(&app),
		newRenderCmd(&app),
		newSearchCmd(&app),
		newClearCacheCmd(&app),
	)
	return root
}

func newListCmd(app **App) *cobra.Command {
	var source, capability string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List locally stored pals",
		RunE: func(cmd *cobra.Command, args []string) error {
			var list []models.Pal
			switch {
			case capability != "":
				list = (*app).Store.GetByCapability(capability)
			case source != "":
				list = (*app).Store.GetBySource(models.Source(source))
			default:
				list = (*app).Store.GetAll()
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSOURCE\tCAPABILITIES")
			for _, p := range list {
				caps := ""
				for c, on := range p.Capabilities {
					if on {
						if caps != "" {
							caps += ","
						}
						caps += c
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Source, caps)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "filter by source (local|remote)")
	cmd.Flags().StringVar(&capability, "capability", "", "filter by capability flag")
	return cmd
}

func newSyncCmd(app **App) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run a full catalog sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := (*app).Syncer.SyncAll(ctx); err != nil {
				info := retryx.Classify(err)
				return fmt.Errorf("%s", info.UserMessage)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sync complete at %s\n",
				(*app).Syncer.LastSyncAt().Format("15:04:05"))
			return nil
		},
	}
}

func newStatusCmd(app **App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-entity sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := (*app).Syncer.Status(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ENTITY\tSTATUS\tLAST SYNC\tERROR")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					r.EntityType, r.Status, r.LastSyncAt.Format("2006-01-02 15:04:05"), r.ErrorMessage)
			}
			return w.Flush()
		},
	}
}

func newImportCmd(app **App) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Run the one-shot legacy import",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := (*app).Engine.Run(cmd.Context())
			if err != nil {
				return err
			}
			if !res.Performed {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to import")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d pals\n", res.Imported)
			return nil
		},
	}
}

func newDownloadCmd(app **App) *cobra.Command {
	return &cobra.Command{
		Use:   "download <remote-id>",
		Short: "Materialize a catalog item as a local pal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			item, err := retryx.Do(ctx, retryx.Options{}, func(ctx context.Context) (*catalog.Item, error) {
				return (*app).Catalog.GetByID(ctx, args[0])
			})
			if err != nil {
				return fmt.Errorf("%s", retryx.Classify(err).UserMessage)
			}
			pal, err := (*app).Store.MaterializeRemoteItem(ctx, item)
			if err != nil {
				return fmt.Errorf("%s", retryx.Classify(err).UserMessage)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %q as %s\n", pal.Name, pal.ID)
			return nil
		},
	}
}

func newRenderCmd(app **App) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "render <pal-id>",
		Short: "Render a pal's prompt template with parameter values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := map[string]string{}
			for _, kv := range params {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --param %q, want key=value", kv)
				}
				values[k] = v
			}
			out, err := (*app).Store.RenderPrompt(args[0], values)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "parameter value as key=value (repeatable)")
	return cmd
}

func newSearchCmd(app **App) *cobra.Command {
	var category, tag string
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search the remote catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := catalog.Query{Category: category, Tag: tag}
			if len(args) > 0 {
				q.Text = args[0]
			}
			items := (*app).Store.Search(cmd.Context(), q)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPRICE\tRATING")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%.1f\n", it.ID, it.Name, it.Price, it.Rating)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVar(&tag, "tag", "", "filter by tag")
	return cmd
}

func newClearCacheCmd(app **App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Drop cached items, the library mirror and sync state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (*app).Syncer.ClearCache(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}
}
