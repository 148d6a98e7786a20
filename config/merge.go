package config

// TrainingParams are optional hyperparameter overrides. A nil field means
// "no opinion"; the effective value comes from the base layer underneath
// (device defaults, then preset, then user override).
type TrainingParams struct {
	Epochs               *int     `yaml:"epochs,omitempty" json:"num_train_epochs,omitempty"`
	BatchSize            *int     `yaml:"batch_size,omitempty" json:"per_device_train_batch_size,omitempty"`
	GradientAccumulation *int     `yaml:"gradient_accumulation,omitempty" json:"gradient_accumulation_steps,omitempty"`
	LearningRate         *float64 `yaml:"learning_rate,omitempty" json:"learning_rate,omitempty"`
	MaxLength            *int     `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	WarmupRatio          *float64 `yaml:"warmup_ratio,omitempty" json:"warmup_ratio,omitempty"`
	WeightDecay          *float64 `yaml:"weight_decay,omitempty" json:"weight_decay,omitempty"`
	MaxGradNorm          *float64 `yaml:"max_grad_norm,omitempty" json:"max_grad_norm,omitempty"`
	LoggingSteps         *int     `yaml:"logging_steps,omitempty" json:"logging_steps,omitempty"`
	Seed                 *int     `yaml:"seed,omitempty" json:"seed,omitempty"`
	LRSchedulerType      *string  `yaml:"lr_scheduler_type,omitempty" json:"lr_scheduler_type,omitempty"`
	Optimizer            *string  `yaml:"optimizer,omitempty" json:"optim,omitempty"`
}

// Merge layers override on top of base: every field set in override wins,
// everything else passes through from base. Pure function, no shared state.
func Merge(base, override TrainingParams) TrainingParams {
	out := base
	if override.Epochs != nil {
		out.Epochs = override.Epochs
	}
	if override.BatchSize != nil {
		out.BatchSize = override.BatchSize
	}
	if override.GradientAccumulation != nil {
		out.GradientAccumulation = override.GradientAccumulation
	}
	if override.LearningRate != nil {
		out.LearningRate = override.LearningRate
	}
	if override.MaxLength != nil {
		out.MaxLength = override.MaxLength
	}
	if override.WarmupRatio != nil {
		out.WarmupRatio = override.WarmupRatio
	}
	if override.WeightDecay != nil {
		out.WeightDecay = override.WeightDecay
	}
	if override.MaxGradNorm != nil {
		out.MaxGradNorm = override.MaxGradNorm
	}
	if override.LoggingSteps != nil {
		out.LoggingSteps = override.LoggingSteps
	}
	if override.Seed != nil {
		out.Seed = override.Seed
	}
	if override.LRSchedulerType != nil {
		out.LRSchedulerType = override.LRSchedulerType
	}
	if override.Optimizer != nil {
		out.Optimizer = override.Optimizer
	}
	return out
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func stringPtr(v string) *string  { return &v }

// CUDADefaults returns the fully populated base layer for CUDA training,
// mirroring the backend's defaults.
func CUDADefaults() TrainingParams {
	return TrainingParams{
		Epochs:               intPtr(3),
		BatchSize:            intPtr(4),
		GradientAccumulation: intPtr(4),
		LearningRate:         floatPtr(2e-4),
		MaxLength:            intPtr(512),
		WarmupRatio:          floatPtr(0.1),
		WeightDecay:          floatPtr(0.01),
		MaxGradNorm:          floatPtr(1.0),
		LoggingSteps:         intPtr(10),
		Seed:                 intPtr(42),
		LRSchedulerType:      stringPtr("linear"),
		Optimizer:            stringPtr("paged_adamw_8bit"),
	}
}

// CPUDefaults returns the fully populated base layer for CPU (and MPS)
// training.
func CPUDefaults() TrainingParams {
	return TrainingParams{
		Epochs:               intPtr(3),
		BatchSize:            intPtr(1),
		GradientAccumulation: intPtr(4),
		LearningRate:         floatPtr(3e-4),
		MaxLength:            intPtr(512),
		WarmupRatio:          floatPtr(0.03),
		WeightDecay:          floatPtr(0.01),
		MaxGradNorm:          floatPtr(1.0),
		LoggingSteps:         intPtr(5),
		Seed:                 intPtr(42),
		LRSchedulerType:      stringPtr("linear"),
		Optimizer:            stringPtr("adamw_torch"),
	}
}
