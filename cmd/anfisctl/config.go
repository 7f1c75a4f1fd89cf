package main

import (
	"encoding/json"
	"fmt"
	"os"

	anfisapi "anfis/pkg/anfis"
)

func loadTrainRequestFromConfig(path string) (anfisapi.TrainRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return anfisapi.TrainRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return anfisapi.TrainRequest{}, err
	}

	var req anfisapi.TrainRequest
	if v, ok := asString(raw["dataset"]); ok {
		req.Dataset = v
	}
	if v, ok := asString(raw["target"]); ok {
		req.TargetColumn = v
	}
	if v, ok := asString(raw["resume"]); ok {
		req.Resume = v
	}
	if v, ok := asInt(raw["mfs"]); ok {
		req.MFs = v
	}
	if v, ok := asString(raw["premise"]); ok {
		req.Premise = v
	}
	if v, ok := asString(raw["consequent"]); ok {
		req.Consequent = v
	}
	if v, ok := asString(raw["tnorm"]); ok {
		req.TNorm = v
	}
	if v, ok := asString(raw["init"]); ok {
		req.Init = v
	}
	if v, ok := asFloat64(raw["lambda"]); ok {
		req.Lambda = v
	}
	if v, ok := asFloat64(raw["gamma"]); ok {
		req.Gamma = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asString(raw["mode"]); ok {
		req.Mode = v
	}
	if v, ok := asString(raw["system_mode"]); ok {
		req.SystemMode = v
	}
	if v, ok := asFloat64(raw["tolerance"]); ok {
		req.Tolerance = &v
	}
	if v, ok := asInt(raw["max_epochs"]); ok {
		req.MaxEpochs = v
	}
	if v, ok := asFloat64(raw["initial_k"]); ok {
		req.InitialK = v
	}
	if v, ok := asBool(raw["fixed_step"]); ok {
		req.FixedStep = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	return req, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func overrideFromFlags(req *anfisapi.TrainRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "dataset":
			req.Dataset = v.(string)
		case "target":
			req.TargetColumn = v.(string)
		case "resume":
			req.Resume = v.(string)
		case "mfs":
			req.MFs = v.(int)
		case "premise":
			req.Premise = v.(string)
		case "consequent":
			req.Consequent = v.(string)
		case "tnorm":
			req.TNorm = v.(string)
		case "init":
			req.Init = v.(string)
		case "lambda":
			req.Lambda = v.(float64)
		case "gamma":
			req.Gamma = v.(float64)
		case "seed":
			req.Seed = v.(int64)
		case "mode":
			req.Mode = v.(string)
		case "system-mode":
			req.SystemMode = v.(string)
		case "tolerance":
			tolerance := v.(float64)
			req.Tolerance = &tolerance
		case "max-epochs":
			req.MaxEpochs = v.(int)
		case "initial-k":
			req.InitialK = v.(float64)
		case "fixed-step":
			req.FixedStep = v.(bool)
		case "workers":
			req.Workers = v.(int)
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return nil
}

func loadOrDefaultTrainRequest(configPath string) (anfisapi.TrainRequest, error) {
	if configPath == "" {
		return anfisapi.TrainRequest{}, nil
	}
	req, err := loadTrainRequestFromConfig(configPath)
	if err != nil {
		return anfisapi.TrainRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}
