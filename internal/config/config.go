package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/AndreyAkinshin/fleetbuild/internal/schema"
)

// Metadata layout inside a metadata directory.
const (
	GroupsDirName  = "groups"
	GroupFileName  = "group.yml"
	ImagesDirName  = "images"
	RPMsDirName    = "rpms"
	targetFileGlob = "*.yml"
)

// Group is a fully loaded group: group.yml plus every target config,
// keyed by distgit key (the config file basename).
type Group struct {
	Name   string
	Dir    string
	Config *GroupConfig
	Images map[string]*TargetConfig
	RPMs   map[string]*TargetConfig
}

// GroupDir returns the directory holding a group's metadata.
func GroupDir(metadataDir, group string) string {
	return filepath.Join(metadataDir, GroupsDirName, group)
}

// LoadGroupConfig reads and validates a group.yml file.
func LoadGroupConfig(path string) (*GroupConfig, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read group config: %w", err)
	}

	if err := schema.ValidateGroup(data); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	var cfg GroupConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse group config: %w", err)
	}

	warnings := detectUnknownFields(data, GroupConfig{}, GroupFileName)
	applyGroupDefaults(&cfg)

	if err := ValidateGroup(&cfg); err != nil {
		return nil, warnings, err
	}
	return &cfg, warnings, nil
}

// LoadTargetConfig reads and validates one image or rpm config file.
func LoadTargetConfig(path string) (*TargetConfig, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read target config: %w", err)
	}

	if err := schema.ValidateTarget(data); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	var cfg TargetConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	warnings := detectUnknownFields(data, TargetConfig{}, filepath.Base(path))
	applyTargetDefaults(&cfg)

	if err := ValidateTarget(KeyFromFilename(path), &cfg); err != nil {
		return nil, warnings, err
	}
	return &cfg, warnings, nil
}

// LoadGroup loads group.yml and every image and rpm config of a group.
// Per-file errors are aggregated so the operator sees all of them at once.
func LoadGroup(metadataDir, group string) (*Group, []string, error) {
	dir := GroupDir(metadataDir, group)
	gcfg, warnings, err := LoadGroupConfig(filepath.Join(dir, GroupFileName))
	if err != nil {
		return nil, warnings, err
	}
	if gcfg.Name == "" {
		gcfg.Name = group
	}

	g := &Group{
		Name:   group,
		Dir:    dir,
		Config: gcfg,
	}

	var errs []error
	var w []string
	g.Images, w, errs = loadTargetDir(filepath.Join(dir, ImagesDirName), errs)
	warnings = append(warnings, w...)
	g.RPMs, w, errs = loadTargetDir(filepath.Join(dir, RPMsDirName), errs)
	warnings = append(warnings, w...)

	if agg := utilerrors.NewAggregate(errs); agg != nil {
		return nil, warnings, agg
	}
	return g, warnings, nil
}

// loadTargetDir loads every *.yml in dir. A missing directory yields an empty map.
func loadTargetDir(dir string, errs []error) (map[string]*TargetConfig, []string, []error) {
	targets := make(map[string]*TargetConfig)
	paths, err := filepath.Glob(filepath.Join(dir, targetFileGlob))
	if err != nil {
		return targets, nil, append(errs, err)
	}
	sort.Strings(paths)

	var warnings []string
	for _, path := range paths {
		cfg, w, err := LoadTargetConfig(path)
		warnings = append(warnings, w...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		targets[KeyFromFilename(path)] = cfg
	}
	return targets, warnings, errs
}

// KeyFromFilename returns the distgit key for a config path ("images/ose-cli.yml" → "ose-cli").
func KeyFromFilename(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// IsNonRelease reports whether the image key is listed under non_release.images.
func (g *GroupConfig) IsNonRelease(key string) bool {
	if g.NonRelease == nil {
		return false
	}
	for _, k := range g.NonRelease.Images {
		if k == key {
			return true
		}
	}
	return false
}
