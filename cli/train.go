package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ollaforge/forgecli/api"
	"github.com/ollaforge/forgecli/session"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Start, cancel and monitor training jobs",
}

var (
	trainModelFlag   string
	trainFilesFlag   []string
	trainQuantFlag   string
	trainWatchFlag   bool
	trainNoUIFlag    bool
	watchNoUIFlag    bool
	cancelNoWaitFlag bool
)

var trainStartCmd = &cobra.Command{
	Use:   "start <project-slug>",
	Short: "Start a training job",
	Long: `Start a training job for a project. The base model comes from --model,
the project's stored model, or the configured default, in that order.
Without --file, every data file in the project is used.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug := args[0]
		client, cfg, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		model := trainModelFlag
		if model == "" {
			model = projectModel(ctx, client, slug)
		}
		if model == "" {
			model = cfg.Defaults.Model
		}
		if model == "" {
			return fmt.Errorf("no base model given: pass --model or set one with 'forgecli config' or the project settings")
		}

		files := trainFilesFlag
		if len(files) == 0 {
			infos, err := client.ListDataFiles(ctx, slug)
			if err != nil {
				return fmt.Errorf("failed to list data files: %w", err)
			}
			for _, info := range infos {
				files = append(files, info.Filename)
			}
		}
		if len(files) == 0 {
			return fmt.Errorf("project %s has no data files: upload some with 'forgecli files upload'", slug)
		}

		quant := trainQuantFlag
		if quant == "" {
			quant = cfg.Defaults.Quantization
		}

		req := api.StartTrainingRequest{
			ModelName:    model,
			DataFiles:    files,
			Quantization: quant,
		}

		if trainWatchFlag && shouldUseTrainUI(isInteractiveTerminal(), trainNoUIFlag) {
			return runTrainWatchUIWithStart(client, slug, &req)
		}

		resp, err := client.StartTraining(ctx, slug, req)
		if err != nil {
			return fmt.Errorf("failed to start training: %s", api.Code(err))
		}
		fmt.Printf("Training started: job=%s status=%s\n", resp.JobID, resp.Status)
		fmt.Printf("Follow it with: forgecli train watch %s\n", slug)
		return nil
	},
}

var trainCancelCmd = &cobra.Command{
	Use:   "cancel <project-slug>",
	Short: "Cancel the running training job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug := args[0]
		client, _, err := newAPIClient()
		if err != nil {
			return err
		}

		sess := session.New(client, slug, nil)
		if err := sess.Cancel(cmd.Context()); err != nil {
			return fmt.Errorf("failed to cancel training: %s", api.Code(err))
		}
		fmt.Println("Cancellation requested.")
		if cancelNoWaitFlag {
			return nil
		}
		return waitForTerminalStatus(cmd.Context(), client, slug, 30*time.Second)
	},
}

var trainStatusCmd = &cobra.Command{
	Use:   "status <project-slug>",
	Short: "Show the training status snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.TrainingStatus(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to fetch status: %s", api.Code(err))
		}
		printTrainingStatus(resp)
		return nil
	},
}

var trainWatchCmd = &cobra.Command{
	Use:   "watch <project-slug>",
	Short: "Follow a training job live",
	Long: `Attach to a project's training session. In a terminal this opens the
full-screen monitor; otherwise (or with --no-ui) state transitions and
backend log lines are printed as they arrive.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug := args[0]
		client, _, err := newAPIClient()
		if err != nil {
			return err
		}
		if shouldUseTrainUI(isInteractiveTerminal(), watchNoUIFlag) {
			return runTrainWatchUI(client, slug)
		}
		return runTrainFollow(client, slug)
	},
}

func init() {
	trainStartCmd.Flags().StringVar(&trainModelFlag, "model", "", "Base model to fine-tune (e.g. llama3.2:3b)")
	trainStartCmd.Flags().StringSliceVar(&trainFilesFlag, "file", nil, "Data file to train on (repeatable; default: all)")
	trainStartCmd.Flags().StringVar(&trainQuantFlag, "quantization", "", "GGUF quantization for the export")
	trainStartCmd.Flags().BoolVar(&trainWatchFlag, "watch", false, "Attach the live monitor after starting")
	trainStartCmd.Flags().BoolVar(&trainNoUIFlag, "no-ui", false, "Never open the full-screen monitor")
	trainWatchCmd.Flags().BoolVar(&watchNoUIFlag, "no-ui", false, "Print events instead of the full-screen monitor")
	trainCancelCmd.Flags().BoolVar(&cancelNoWaitFlag, "no-wait", false, "Return without waiting for the job to settle")

	trainCmd.AddCommand(trainStartCmd)
	trainCmd.AddCommand(trainCancelCmd)
	trainCmd.AddCommand(trainStatusCmd)
	trainCmd.AddCommand(trainWatchCmd)
}

// projectModel returns the project's stored base model, or "" when the
// project cannot be resolved.
func projectModel(ctx context.Context, client *api.Client, slug string) string {
	projects, err := client.ListProjects(ctx)
	if err != nil {
		return ""
	}
	for _, p := range projects {
		if p.Slug == slug {
			return p.Model
		}
	}
	return ""
}

func printTrainingStatus(resp *api.TrainingStatusResponse) {
	fmt.Printf("Status:    %s\n", resp.Status)
	fmt.Printf("Job:       %s\n", orDash(resp.JobID))
	fmt.Printf("Can start: %v\n", resp.CanStart)
	if resp.Progress.TotalSteps > 0 {
		fmt.Printf("Progress:  %.1f%% (step %d/%d)\n",
			resp.Progress.Progress, resp.Progress.CurrentStep, resp.Progress.TotalSteps)
	}
	if resp.Progress.Device != "" {
		fmt.Printf("Device:    %s\n", resp.Progress.Device)
	}
	if resp.Progress.ErrorCode != "" {
		fmt.Printf("Error:     %s\n", resp.Progress.ErrorCode)
	}
	if len(resp.Progress.Tasks) > 0 {
		fmt.Println("Tasks:")
		for _, task := range resp.Progress.Tasks {
			line := fmt.Sprintf("  %-18s %-12s", task.TaskID, task.Status)
			if task.Status == api.TaskInProgress {
				line += fmt.Sprintf(" %3d%%", task.Progress)
			}
			if task.ErrorCount > 0 {
				line += fmt.Sprintf(" errors=%d", task.ErrorCount)
			}
			fmt.Println(line)
		}
	}
	if len(resp.Progress.FileStatuses) > 0 {
		fmt.Println("Data files:")
		for _, fs := range resp.Progress.FileStatuses {
			fmt.Printf("  %-30s %-12s rows=%d skipped=%d\n",
				fs.Filename, fs.Status, fs.RowsLoaded, fs.RowsSkipped)
		}
	}
}

// runTrainFollow is the plain-text fallback for non-interactive terminals.
// It prints state transitions and backend log lines until the job settles
// or the user interrupts.
func runTrainFollow(client *api.Client, slug string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	terminal := make(chan api.TrainingStatus, 1)
	var lastStatus api.TrainingStatus

	sess := session.New(client, slug, nil,
		session.WithOnChange(func(st session.State) {
			if st.Status != lastStatus {
				lastStatus = st.Status
				fmt.Printf("[%s] status=%s job=%s\n",
					time.Now().Format("15:04:05"), st.Status, orDash(st.JobID))
				if st.Status.IsTerminal() {
					select {
					case terminal <- st.Status:
					default:
					}
				}
			}
		}),
		session.WithOnLog(func(entry session.LogEntry) {
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05"), strings.TrimSpace(entry.Message))
		}),
	)
	sess.Open(ctx)
	defer sess.Close()

	select {
	case <-sigCh:
		fmt.Println("Detached. The job keeps running on the backend.")
		return nil
	case status := <-terminal:
		if status == api.StatusFailed {
			st := sess.State()
			if st.LastError != "" {
				return fmt.Errorf("training failed: %s", st.LastError)
			}
			return fmt.Errorf("training failed")
		}
		return nil
	}
}

// waitForTerminalStatus polls the snapshot endpoint until the job reaches a
// final state or the timeout passes.
func waitForTerminalStatus(ctx context.Context, client *api.Client, slug string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.TrainingStatus(ctx, slug)
		if err == nil && resp.Status.IsTerminal() {
			fmt.Printf("Job settled: %s\n", resp.Status)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	fmt.Println("Job has not settled yet; check 'forgecli train status'.")
	return nil
}
