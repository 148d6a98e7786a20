package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ollaforge/forgecli/api"
	"github.com/ollaforge/forgecli/watcher"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage a project's training data files",
}

var (
	filesInvalidFlag  bool
	filesDebounceFlag time.Duration
	uploadConcurrency = 4
)

var filesListCmd = &cobra.Command{
	Use:   "list <project-slug>",
	Short: "List data files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newAPIClient()
		if err != nil {
			return err
		}
		files, err := client.ListDataFiles(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to list data files: %s", api.Code(err))
		}
		if len(files) == 0 {
			fmt.Println("No data files yet. Upload JSONL files with 'forgecli files upload'.")
			return nil
		}
		for _, f := range files {
			size := f.SizeFormatted
			if size == "" {
				size = formatBytes(f.Size)
			}
			fmt.Printf("%-40s %10s\n", f.Filename, size)
		}
		return nil
	},
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <project-slug> <file.jsonl>...",
	Short: "Upload JSONL data files",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newAPIClient()
		if err != nil {
			return err
		}
		slug := args[0]
		paths := args[1:]

		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(uploadConcurrency)
		for _, path := range paths {
			path := path
			g.Go(func() error {
				if err := uploadOne(ctx, client, slug, path); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				return nil
			})
		}
		return g.Wait()
	},
}

func uploadOne(ctx context.Context, client *api.Client, slug, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	resp, err := client.UploadDataFile(ctx, slug, path, f)
	if err != nil {
		return fmt.Errorf("upload failed: %s", api.Code(err))
	}
	note := ""
	if resp.Filename != filepath.Base(path) {
		note = " (stored as " + resp.Filename + ")"
	}
	fmt.Printf("Uploaded %s%s\n", path, note)
	return nil
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <project-slug> <filename>",
	Short: "Delete a data file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.DeleteDataFile(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("failed to delete %s: %s", args[1], api.Code(err))
		}
		fmt.Printf("Deleted %s\n", args[1])
		return nil
	},
}

var filesShowCmd = &cobra.Command{
	Use:   "show <project-slug> <filename>",
	Short: "Show the validated rows of a data file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.GetDataFileContent(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to read %s: %s", args[1], api.Code(err))
		}

		invalid := 0
		for _, row := range resp.Rows {
			if !row.IsValid {
				invalid++
			}
			if filesInvalidFlag && row.IsValid {
				continue
			}
			marker := "ok"
			if !row.IsValid {
				marker = "BAD"
			}
			line := strings.TrimSpace(row.Raw)
			fmt.Printf("%5d %-3s %s\n", row.LineNumber, marker, truncateRunes(line, 120))
			if row.Error != "" {
				fmt.Printf("          %s\n", row.Error)
			}
		}
		fmt.Printf("%d rows (%d invalid)", resp.TotalRows, invalid)
		if resp.Truncated {
			fmt.Print(", output truncated by backend")
		}
		fmt.Println()
		return nil
	},
}

var filesSyncCmd = &cobra.Command{
	Use:   "sync <project-slug> <directory>",
	Short: "Mirror a local directory of JSONL files into a project",
	Long: `Watch a local directory and keep the project's data files in step:
new and changed .jsonl files are uploaded, removed files are deleted
from the project. Runs until interrupted.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newAPIClient()
		if err != nil {
			return err
		}
		return runFilesSync(client, args[0], args[1], filesDebounceFlag)
	},
}

func runFilesSync(client *api.Client, slug, dir string, debounce time.Duration) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	opts := []watcher.Option{}
	if debounce > 0 {
		opts = append(opts, watcher.WithDebounce(debounce))
	}
	w, err := watcher.New(dir, opts...)
	if err != nil {
		return err
	}
	defer w.Close()

	// Seed with whatever is already in the directory.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".jsonl") {
			continue
		}
		if err := uploadOne(ctx, client, slug, filepath.Join(dir, entry.Name())); err != nil {
			fmt.Fprintln(os.Stderr, "Warning:", err)
		}
	}

	fmt.Printf("Watching %s (ctrl+c to stop)\n", dir)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case ev, ok := <-w.Events():
				if !ok {
					return nil
				}
				switch ev.Type {
				case watcher.EventCreate, watcher.EventModify:
					if err := uploadOne(gctx, client, slug, ev.Path); err != nil {
						fmt.Fprintln(os.Stderr, "Warning:", err)
					}
				case watcher.EventRemove:
					name := filepath.Base(ev.Path)
					if err := client.DeleteDataFile(gctx, slug, name); err != nil {
						fmt.Fprintf(os.Stderr, "Warning: failed to delete %s: %s\n", name, api.Code(err))
					} else {
						fmt.Printf("Deleted %s\n", name)
					}
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return nil
	}
	return err
}

func init() {
	filesShowCmd.Flags().BoolVar(&filesInvalidFlag, "invalid", false, "Only show rows that failed validation")
	filesSyncCmd.Flags().DurationVar(&filesDebounceFlag, "debounce", 0, "Debounce interval for file change bursts")

	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesUploadCmd)
	filesCmd.AddCommand(filesDeleteCmd)
	filesCmd.AddCommand(filesShowCmd)
	filesCmd.AddCommand(filesSyncCmd)
}
