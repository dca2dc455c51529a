package config

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/edgeforge/os-installer/internal/config/schema"
	"github.com/edgeforge/os-installer/internal/sysprobe"
)

//go:embed catalog.yml
var catalogYAML []byte

// Catalog maps operator-facing tags to concrete package sets. Shipped
// embedded so the installer works without network access to a catalog file.
type Catalog struct {
	Desktops   []DesktopEntry      `yaml:"desktops"`
	Audio      []AudioEntry        `yaml:"audio"`
	Optional   []OptionalEntry     `yaml:"optional"`
	Kernels    []KernelEntry       `yaml:"kernels"`
	GuestTools map[string][]string `yaml:"guestTools"`
}

type DesktopEntry struct {
	Tag            string   `yaml:"tag"`
	Name           string   `yaml:"name"`
	Packages       []string `yaml:"packages"`
	DisplayManager string   `yaml:"displayManager"`
}

type AudioEntry struct {
	Tag      string   `yaml:"tag"`
	Packages []string `yaml:"packages"`
}

type OptionalEntry struct {
	Tag         string   `yaml:"tag"`
	Description string   `yaml:"description"`
	Packages    []string `yaml:"packages"`
}

type KernelEntry struct {
	Variant        string   `yaml:"variant"`
	Packages       []string `yaml:"packages"`
	NvidiaPackages []string `yaml:"nvidiaPackages"`
}

// LoadCatalog validates the embedded catalog against its schema and
// unmarshals it. An invalid embedded catalog is a packaging defect, so the
// error message carries the full validation detail.
func LoadCatalog() (*Catalog, error) {
	return parseCatalog(catalogYAML)
}

func parseCatalog(content []byte) (*Catalog, error) {
	if err := validateYAML(content, schema.CatalogSchema, "catalog-schema.json"); err != nil {
		return nil, fmt.Errorf("package catalog is invalid: %w", err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse package catalog: %w", err)
	}
	return &cat, nil
}

// Desktop looks up a desktop entry by tag.
func (c *Catalog) Desktop(tag string) (DesktopEntry, error) {
	for _, d := range c.Desktops {
		if d.Tag == tag {
			return d, nil
		}
	}
	return DesktopEntry{}, fmt.Errorf("unknown desktop %q", tag)
}

// AudioPackages looks up the package set for an audio tag.
func (c *Catalog) AudioPackages(tag string) ([]string, error) {
	for _, a := range c.Audio {
		if a.Tag == tag {
			return a.Packages, nil
		}
	}
	return nil, fmt.Errorf("unknown audio stack %q", tag)
}

// OptionalPackages expands optional tags into a flat package list,
// preserving order. Unknown tags are an error so typos surface during
// planning, not mid-install.
func (c *Catalog) OptionalPackages(tags []string) ([]string, error) {
	var packages []string
	for _, tag := range tags {
		found := false
		for _, o := range c.Optional {
			if o.Tag == tag {
				packages = append(packages, o.Packages...)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown optional package group %q", tag)
		}
	}
	return packages, nil
}

// Kernel looks up a kernel entry by variant name.
func (c *Catalog) Kernel(variant string) (KernelEntry, error) {
	for _, k := range c.Kernels {
		if k.Variant == variant {
			return k, nil
		}
	}
	return KernelEntry{}, fmt.Errorf("unknown kernel variant %q", variant)
}

// NvidiaPackagesFor returns the NVIDIA driver set matching the kernel
// variant. Mismatched driver/kernel pairs break module builds, so the
// pairing lives in the catalog rather than in install code.
func (c *Catalog) NvidiaPackagesFor(variant string) ([]string, error) {
	k, err := c.Kernel(variant)
	if err != nil {
		return nil, err
	}
	if len(k.NvidiaPackages) == 0 {
		return nil, fmt.Errorf("no NVIDIA driver set for kernel variant %q", variant)
	}
	return k.NvidiaPackages, nil
}

// GuestToolPackages returns the guest utility set for a detected
// virtualization platform, or nil when the platform has no entry.
func (c *Catalog) GuestToolPackages(platform sysprobe.VirtPlatform) []string {
	return c.GuestTools[platform.String()]
}
