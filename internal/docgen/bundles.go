package docgen

// BundleCatalog resolves a bundle id to the list of applications it
// includes, used by the welcome email/PDF and kept as a narrow
// collaborator interface since the bundle catalog itself is out of scope
// (spec.md §1).
type BundleCatalog interface {
	AppsFor(bundle string) []BundleApp
}

// defaultApps is the three-app fallback the orchestrator uses when no
// BundleCatalog is configured, matching the original implementation's own
// fallback-on-exception behavior.
var defaultApps = []BundleApp{
	{Name: "Nextcloud"},
	{Name: "Vaultwarden"},
	{Name: "Authentik"},
}

// StaticCatalog is a fixed bundle->apps map, useful for tests and for
// deployments that don't wire a real catalog service.
type StaticCatalog map[string][]BundleApp

var _ BundleCatalog = StaticCatalog{}

func (c StaticCatalog) AppsFor(bundle string) []BundleApp {
	if apps, ok := c[bundle]; ok {
		return apps
	}
	return defaultApps
}
