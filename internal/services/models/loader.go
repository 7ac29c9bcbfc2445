package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	applogger "OptEdge/pkg/logger"
)

const (
	modelExt     = ".txt"
	scalerSuffix = "_scaler.json"
)

// Entry is one loaded model plus its optional scaler.
type Entry struct {
	Name    string
	Booster Booster
	Scaler  *Scaler
}

// LoadDir scans dir for LightGBM text models and pairs each with its scaler
// file when present. Model names are lowercase file stems; lookup keys in
// the registry match them case-insensitively. A model that fails to load is
// skipped with a log line rather than failing the whole registry.
func LoadDir(dir string, log *applogger.Logger) (map[string]*Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read models dir %s: %w", dir, err)
	}

	registry := make(map[string]*Entry)
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), modelExt) {
			continue
		}
		name := strings.ToLower(strings.TrimSuffix(f.Name(), modelExt))

		booster, err := LoadBooster(filepath.Join(dir, f.Name()))
		if err != nil {
			log.Warn("skipping unloadable model",
				applogger.String("model", name),
				applogger.Error(err),
			)
			continue
		}

		entry := &Entry{Name: name, Booster: booster}

		scalerPath := filepath.Join(dir, name+scalerSuffix)
		if _, err := os.Stat(scalerPath); err == nil {
			scaler, serr := LoadScaler(scalerPath)
			if serr != nil {
				log.Warn("skipping unloadable scaler, model runs unscaled",
					applogger.String("model", name),
					applogger.Error(serr),
				)
			} else {
				entry.Scaler = scaler
			}
		}

		registry[name] = entry
		log.Info("model loaded",
			applogger.String("model", name),
			applogger.Int("n_features", booster.NumFeatures()),
			applogger.Bool("scaled", entry.Scaler != nil),
		)
	}
	return registry, nil
}
