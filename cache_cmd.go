package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pagecast/pagecast/internal/cache"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the book cache",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withBookCache(func(bc *cache.BookCache) error {
				memory, disk := bc.Stats()
				printCacheStats(os.Stdout, "memory", memory)
				printCacheStats(os.Stdout, "disk", disk)
				return nil
			})
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached book",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withBookCache(func(bc *cache.BookCache) error {
				if err := bc.Clear(); err != nil {
					return fmt.Errorf("clearing cache: %w", err)
				}
				fmt.Println("Cache cleared.")
				return nil
			})
		},
	}

	cachePruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Remove expired books from the cache",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withBookCache(func(bc *cache.BookCache) error {
				fmt.Printf("Removed %d expired books.\n", bc.Prune())
				return nil
			})
		},
	}
)

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cachePruneCmd)
}

func withBookCache(fn func(*cache.BookCache) error) error {
	s, err := loadSettings(viper.GetViper())
	if err != nil {
		return err
	}
	bc, err := cache.NewBookCache(s.Cache)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer bc.Close() //nolint:errcheck
	return fn(bc)
}

func printCacheStats(w io.Writer, name string, s cache.Stats) {
	fmt.Fprintf(w, "%-6s  %s of %s  %d books  %.0f%% hits  %d evicted  %d expired\n",
		name,
		humanize.IBytes(uint64(max(s.Size, 0))),     //nolint:gosec
		humanize.IBytes(uint64(max(s.Capacity, 0))), //nolint:gosec
		s.ItemCount,
		s.HitRate*100,
		s.Evictions,
		s.Expired,
	)
}
