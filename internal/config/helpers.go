package config

import (
	"fmt"
	"path/filepath"

	"kisfeed/pkg/dolpha"
	"kisfeed/pkg/feed"
	"kisfeed/pkg/kis"
	"kisfeed/pkg/notify"
)

// MustLoadKIS loads etc/kis.yaml from the project root and panics on error.
// It isolates the vendor credentials so tests that only need a client do not
// have to hydrate the full app config.
func MustLoadKIS() *kis.Config {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "kis.yaml")
	cfg, err := kis.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load kis config %s: %w", path, err))
	}
	return cfg
}

// MustLoadFeed loads etc/feed.yaml from the project root and panics on error.
func MustLoadFeed() *feed.Config {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "feed.yaml")
	cfg, err := feed.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load feed config %s: %w", path, err))
	}
	return cfg
}

// MustLoadDolpha loads etc/dolpha.yaml from the project root and panics on error.
func MustLoadDolpha() *dolpha.Config {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "dolpha.yaml")
	cfg, err := dolpha.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load dolpha config %s: %w", path, err))
	}
	return cfg
}

// MustLoadNotify loads etc/notify.yaml from the project root and panics on error.
func MustLoadNotify() *notify.Config {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "notify.yaml")
	cfg, err := notify.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load notify config %s: %w", path, err))
	}
	return cfg
}
