package cli

import (
	"fmt"
	"strings"

	"github.com/ollaforge/forgecli/api"
)

// taskLabels maps pipeline task ids to the short labels shown on the
// lifecycle rail.
var taskLabels = map[string]string{
	"detect_device":    "Device",
	"import_libraries": "Libs",
	"load_model":       "Model",
	"setup_lora":       "LoRA",
	"tokenize":         "Tokenize",
	"train":            "Train",
	"merge_lora":       "Merge",
	"convert_gguf":     "GGUF",
	"create_modelfile": "Modelfile",
}

func taskLabel(id string) string {
	if label, ok := taskLabels[id]; ok {
		return label
	}
	return id
}

func renderLifecycleRail(theme tuiTheme, tasks []api.TrainingTask) string {
	if len(tasks) == 0 {
		return ""
	}

	segments := make([]string, 0, len(tasks)*2-1)
	for i, task := range tasks {
		var label string
		switch task.Status {
		case api.TaskCompleted:
			label = theme.railDone.Render("[" + taskLabel(task.TaskID) + "]")
		case api.TaskInProgress:
			label = theme.railCurrent.Render("[" + taskLabel(task.TaskID) + "]")
		case api.TaskFailed:
			label = theme.railFailed.Render("[" + taskLabel(task.TaskID) + "]")
		case api.TaskSkipped:
			label = theme.railPending.Render("[" + taskLabel(task.TaskID) + "]")
		default:
			label = theme.railPending.Render("[" + taskLabel(task.TaskID) + "]")
		}
		segments = append(segments, label)
		if i < len(tasks)-1 {
			connector := theme.railPending.Render("->")
			if task.Status == api.TaskCompleted {
				connector = theme.railDone.Render("->")
			}
			segments = append(segments, connector)
		}
	}

	return strings.Join(segments, " ")
}

func renderErrorCard(theme tuiTheme, code, message, hint string, width int) string {
	if width < 20 {
		width = 20
	}
	body := strings.Builder{}
	body.WriteString(theme.danger.Render("Training error"))
	body.WriteString("\n")
	body.WriteString(theme.muted.Render("Code: "))
	body.WriteString(theme.text.Render(code))
	if message != "" && message != code {
		body.WriteString("\n")
		body.WriteString(theme.text.Render(truncateRunes(message, width-4)))
	}
	if hint != "" {
		body.WriteString("\n")
		body.WriteString(theme.info.Render(hint))
	}
	return theme.panel.Width(width).Render(body.String())
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return fmt.Sprintf("%s...", string(r[:limit-3]))
}

func panelHeights(total int) (int, int) {
	if total < 10 {
		return total / 2, total - total/2
	}
	top := int(float64(total) * 0.35)
	if top < 5 {
		top = 5
	}
	bottom := total - top
	if bottom < 5 {
		bottom = 5
		top = total - bottom
	}
	return top, bottom
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
