package domain

// GroupKind is the quantifier a dependency group evaluates under.
type GroupKind string

const (
	GroupRequireAll GroupKind = "require_all"
	GroupRequireAny GroupKind = "require_any"
	GroupOptionalAll GroupKind = "optional_all"
	GroupExcludeAll  GroupKind = "exclude_all"
)

// DependencyGroup is a named bundle of dependency targets with a
// quantifier and a restart-severity subscription, as fetched from the
// Service Repository during vertex setup.
type DependencyGroup struct {
	Kind      GroupKind
	RestartOn RestartSeverity
	Targets   []ServicePath
}

// ServiceDescriptor is what the Service Repository returns for a service
// or instance path: its instances (empty for an instance path) and its
// dependency groups.
type ServiceDescriptor struct {
	Path      ServicePath
	Instances []string // instance names, populated only for service paths
	IsSetup   bool
	IsEnabled bool
	Groups    []DependencyGroup
}

// Repository is the read-mostly catalog the Graph Engine consults. A
// persisted, multi-writer catalog implementation is out of scope here.
// Lookup and Subscribe are the only two operations the Graph Engine
// depends on.
type Repository interface {
	Lookup(path ServicePath) (ServiceDescriptor, error)
	Subscribe(onChange func()) (unsubscribe func())
}
