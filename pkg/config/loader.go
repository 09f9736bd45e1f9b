package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v2"

	"github.com/parentline/guardian/pkg/observability/logging"
)

var (
	config     *GuardianConfig
	configOnce sync.Once
	configErr  error
	configMu   sync.RWMutex

	configUpdateCh chan *GuardianConfig
	configUpdateMu sync.Mutex
)

// Load loads the configuration from the specified YAML file once and caches it globally.
func Load(configPath string) (*GuardianConfig, error) {
	configOnce.Do(func() {
		cfg, err := Parse(configPath)
		if err != nil {
			configErr = err
			return
		}
		configMu.Lock()
		config = cfg
		configMu.Unlock()
	})
	if configErr != nil {
		return nil, configErr
	}
	configMu.RLock()
	defer configMu.RUnlock()
	return config, nil
}

// Parse parses the YAML config file without touching the global cache.
func Parse(configPath string) (*GuardianConfig, error) {
	// Resolve symlinks to handle Kubernetes ConfigMap mounts
	resolved, _ := filepath.EvalSymlinks(configPath)
	if resolved == "" {
		resolved = configPath
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &GuardianConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := validateConfigStructure(cfg); err != nil {
		return nil, err
	}

	logging.Infof("Config loaded: policy_dir=%s store=%s crisis_threshold=%.2f",
		cfg.Policy.Dir, cfg.Session.Store, cfg.Crisis.Threshold)
	return cfg, nil
}

// Replace replaces the globally cached config. It is safe for concurrent readers.
func Replace(newCfg *GuardianConfig) {
	configMu.Lock()
	config = newCfg
	configErr = nil
	configMu.Unlock()

	configUpdateMu.Lock()
	if configUpdateCh != nil {
		select {
		case configUpdateCh <- newCfg:
		default:
			// Listener is behind; drop rather than block the reloader.
		}
	}
	configUpdateMu.Unlock()
}

// Get returns the globally cached config, or nil before Load.
func Get() *GuardianConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	return config
}

// UpdateChannel returns a channel that receives the new config after each Replace.
func UpdateChannel() <-chan *GuardianConfig {
	configUpdateMu.Lock()
	defer configUpdateMu.Unlock()
	if configUpdateCh == nil {
		configUpdateCh = make(chan *GuardianConfig, 1)
	}
	return configUpdateCh
}
