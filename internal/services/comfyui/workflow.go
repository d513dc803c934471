package comfyui

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// stylePrefix is prepended to every positive prompt so pages share one look.
const stylePrefix = "watercolor painting, children's book illustration, "

// uiNode is one node of a workflow JSON as exported from the ComfyUI editor.
type uiNode struct {
	ID            int    `json:"id"`
	Type          string `json:"type"`
	Title         string `json:"title"`
	WidgetsValues []any  `json:"widgets_values"`
}

type uiWorkflow struct {
	Nodes []uiNode `json:"nodes"`
}

// LoadWorkflow reads a UI-format workflow template from disk.
func LoadWorkflow(path string) (uiWorkflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return uiWorkflow{}, fmt.Errorf("read workflow template: %w", err)
	}
	var wf uiWorkflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return uiWorkflow{}, fmt.Errorf("parse workflow template %s: %w", path, err)
	}
	if len(wf.Nodes) == 0 {
		return uiWorkflow{}, fmt.Errorf("workflow template %s has no nodes", path)
	}
	return wf, nil
}

// BuildAPIWorkflow converts a UI-format workflow into the API format ComfyUI
// accepts on /prompt, substituting the positive prompt and sampler seed. The
// node wiring matches the fixed template shipped with the daemon: checkpoint
// loader 1, positive prompt 5, negative prompt 6, latent 9, sampler 12.
func BuildAPIWorkflow(wf uiWorkflow, positivePrompt string, seed int64) map[string]any {
	api := make(map[string]any, len(wf.Nodes))
	for _, node := range wf.Nodes {
		if node.Type == "" {
			continue
		}
		inputs := map[string]any{}
		switch node.Type {
		case "CLIPTextEncode":
			if node.Title == "PROMPT_POS" || node.ID == 5 {
				inputs["text"] = stylePrefix + positivePrompt
			} else {
				inputs["text"] = widgetString(node.WidgetsValues, 0, "")
			}
			inputs["clip"] = []any{"1", 1}
		case "KSampler":
			inputs["seed"] = seed
			inputs["control_after_generate"] = "fixed"
			inputs["steps"] = widgetValue(node.WidgetsValues, 2, 5)
			inputs["cfg"] = widgetValue(node.WidgetsValues, 3, 1)
			inputs["sampler_name"] = widgetValue(node.WidgetsValues, 4, "dpmpp_sde_gpu")
			inputs["scheduler"] = widgetValue(node.WidgetsValues, 5, "karras")
			inputs["denoise"] = widgetValue(node.WidgetsValues, 6, 1)
			inputs["model"] = []any{"1", 0}
			inputs["positive"] = []any{"5", 0}
			inputs["negative"] = []any{"6", 0}
			inputs["latent_image"] = []any{"9", 0}
		case "CheckpointLoaderSimple":
			inputs["ckpt_name"] = widgetValue(node.WidgetsValues, 0, "flux1-schnell-fp8.safetensors")
		case "EmptyLatentImage":
			inputs["width"] = widgetValue(node.WidgetsValues, 0, 1024)
			inputs["height"] = widgetValue(node.WidgetsValues, 1, 1024)
			inputs["batch_size"] = widgetValue(node.WidgetsValues, 2, 1)
		case "VAEDecode":
			inputs["samples"] = []any{"12", 0}
			inputs["vae"] = []any{"1", 2}
		case "SaveImage":
			inputs["filename_prefix"] = widgetValue(node.WidgetsValues, 0, "ComfyUI")
			inputs["images"] = []any{"4", 0}
		}
		api[strconv.Itoa(node.ID)] = map[string]any{
			"class_type": node.Type,
			"inputs":     inputs,
		}
	}
	return api
}

func widgetValue(widgets []any, index int, fallback any) any {
	if index < len(widgets) && widgets[index] != nil {
		return widgets[index]
	}
	return fallback
}

func widgetString(widgets []any, index int, fallback string) string {
	if index < len(widgets) {
		if s, ok := widgets[index].(string); ok {
			return s
		}
	}
	return fallback
}
