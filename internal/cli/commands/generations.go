package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"offlinecache/internal/daemon"
	"offlinecache/internal/storage"
)

var generationsCmd = &cobra.Command{
	Use:   "generations",
	Short: "List cache generations",
	Long: `Lists the cache generations in storage. The current generation is
marked with *.

With --local the cache file is read directly, which works while the
daemon is stopped (sqlite storage only).

Examples:
  offlinecache generations
  offlinecache generations --local --keys ai-blog-v1`,
	Args: cobra.NoArgs,
	RunE: runGenerations,
}

var generationsLocal bool
var generationsKeys string

func init() {
	generationsCmd.Flags().BoolVar(&generationsLocal, "local", false, "Read the cache file instead of asking the daemon")
	generationsCmd.Flags().StringVar(&generationsKeys, "keys", "", "With --local, list the entry keys of this generation")
	rootCmd.AddCommand(generationsCmd)
}

func runGenerations(cmd *cobra.Command, args []string) error {
	if generationsKeys != "" && !generationsLocal {
		return fmt.Errorf("--keys requires --local")
	}
	if generationsLocal {
		return runGenerationsLocal(cmd.Context())
	}
	return withClient(func(c *daemon.Client) error {
		gens, err := c.Generations()
		if err != nil {
			return err
		}
		printGenerations(os.Stdout, gens)
		return nil
	})
}

func runGenerationsLocal(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	settings, err := daemon.LoadGlobalSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if settings.Storage == daemon.StorageMemory {
		return fmt.Errorf("storage is memory: generations only exist inside the daemon")
	}

	path := daemon.CacheFilePath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No cache generations")
		return nil
	}
	cf, err := storage.OpenWithContext(path, storage.DBContextCLI)
	if err != nil {
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer cf.Close()

	if generationsKeys != "" {
		return printGenerationKeys(ctx, cf, generationsKeys)
	}

	stats, err := cf.Stats(ctx)
	if err != nil {
		return err
	}
	printGenerations(os.Stdout, daemon.GenerationInfos(stats, settings.Generation))
	return nil
}

func printGenerationKeys(ctx context.Context, cf *storage.CacheFile, name string) error {
	ok, err := cf.Has(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("generation %q not found", name)
	}
	store, err := cf.Open(ctx, name)
	if err != nil {
		return err
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}
