package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ollaforge/forgecli/api"
	"github.com/ollaforge/forgecli/config"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Inspect the backend's hyperparameter presets",
}

var (
	presetEffectiveFlag bool
	presetDeviceFlag    string
)

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newAPIClient()
		if err != nil {
			return err
		}
		presets, err := client.ListPresets(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list presets: %s", api.Code(err))
		}
		for _, p := range presets {
			fmt.Printf("%-16s %-24s %s\n", p.ID, p.Name, p.Description)
		}
		return nil
	},
}

var presetsShowCmd = &cobra.Command{
	Use:   "show <preset-id>",
	Short: "Show one preset",
	Long: `Show a preset's hyperparameters. With --effective the preset is layered
on top of the device defaults and under your configured overrides, the
same way the backend resolves a training run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newAPIClient()
		if err != nil {
			return err
		}
		preset, err := client.GetPreset(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to fetch preset: %s", api.Code(err))
		}

		fmt.Printf("Preset: %s (%s)\n", preset.Name, preset.ID)
		if preset.Description != "" {
			fmt.Println(preset.Description)
		}

		if !presetEffectiveFlag {
			printParamSection("Training", preset.Training)
			printParamSection("LoRA", preset.Lora)
			printParamSection("Quantization", preset.Quantization)
			return nil
		}

		presetParams, err := paramsFromMap(preset.Training)
		if err != nil {
			return fmt.Errorf("preset has unusable training block: %w", err)
		}

		base := config.CUDADefaults()
		if presetDeviceFlag == "cpu" || presetDeviceFlag == "mps" {
			base = config.CPUDefaults()
		}
		effective := config.Merge(config.Merge(base, presetParams), cfg.Training)

		fmt.Printf("Effective training parameters (device=%s):\n", presetDeviceFlag)
		printTrainingParams(effective)
		return nil
	},
}

func init() {
	presetsShowCmd.Flags().BoolVar(&presetEffectiveFlag, "effective", false, "Resolve against device defaults and config overrides")
	presetsShowCmd.Flags().StringVar(&presetDeviceFlag, "device", "cuda", "Device the defaults are resolved for (cuda, mps, cpu)")

	presetsCmd.AddCommand(presetsListCmd)
	presetsCmd.AddCommand(presetsShowCmd)
}

// paramsFromMap converts the backend's free-form training block into typed
// overrides via its JSON field names.
func paramsFromMap(m map[string]any) (config.TrainingParams, error) {
	var params config.TrainingParams
	if len(m) == 0 {
		return params, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return params, err
	}
	if err := json.Unmarshal(data, &params); err != nil {
		return params, err
	}
	return params, nil
}

func printParamSection(title string, m map[string]any) {
	if len(m) == 0 {
		return
	}
	fmt.Println(title + ":")
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-28s %v\n", k, m[k])
	}
}

func printTrainingParams(p config.TrainingParams) {
	printIf := func(name string, v any) {
		fmt.Printf("  %-28s %v\n", name, v)
	}
	if p.Epochs != nil {
		printIf("num_train_epochs", *p.Epochs)
	}
	if p.BatchSize != nil {
		printIf("per_device_train_batch_size", *p.BatchSize)
	}
	if p.GradientAccumulation != nil {
		printIf("gradient_accumulation_steps", *p.GradientAccumulation)
	}
	if p.LearningRate != nil {
		printIf("learning_rate", *p.LearningRate)
	}
	if p.MaxLength != nil {
		printIf("max_length", *p.MaxLength)
	}
	if p.WarmupRatio != nil {
		printIf("warmup_ratio", *p.WarmupRatio)
	}
	if p.WeightDecay != nil {
		printIf("weight_decay", *p.WeightDecay)
	}
	if p.MaxGradNorm != nil {
		printIf("max_grad_norm", *p.MaxGradNorm)
	}
	if p.LoggingSteps != nil {
		printIf("logging_steps", *p.LoggingSteps)
	}
	if p.Seed != nil {
		printIf("seed", *p.Seed)
	}
	if p.LRSchedulerType != nil {
		printIf("lr_scheduler_type", *p.LRSchedulerType)
	}
	if p.Optimizer != nil {
		printIf("optim", *p.Optimizer)
	}
}
