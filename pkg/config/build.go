package config

import (
	"strings"

	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
	"github.com/core-tools/hsu-svcmgr-go/pkg/restarter"
)

// parsePath parses the config file's "svc" or "svc/inst" target syntax
// into a domain.ServicePath.
func parsePath(s string) domain.ServicePath {
	svc, inst, found := strings.Cut(s, "/")
	if !found {
		return domain.ServicePath{Service: svc}
	}
	return domain.ServicePath{Service: svc, Instance: inst}
}

// BuildRepository turns a parsed Config into a populated StaticRepository,
// one descriptor per service and per declared instance, ready for the
// Graph Engine's VertexSetup to consult.
func BuildRepository(cfg *Config) *domain.StaticRepository {
	repo := domain.NewStaticRepository()

	for _, svc := range cfg.Services {
		instNames := make([]string, len(svc.Instances))
		for i, inst := range svc.Instances {
			instNames[i] = inst.Name
		}

		repo.Put(domain.ServiceDescriptor{
			Path:      domain.ServicePath{Service: svc.Name},
			Instances: instNames,
			IsEnabled: boolOr(svc.Enabled, true),
			Groups:    buildGroups(svc.Groups),
		})

		for _, inst := range svc.Instances {
			repo.Put(domain.ServiceDescriptor{
				Path:      domain.ServicePath{Service: svc.Name, Instance: inst.Name},
				IsEnabled: boolOr(inst.Enabled, boolOr(svc.Enabled, true)),
				Groups:    buildGroups(inst.Groups),
			})
		}
	}

	return repo
}

func buildGroups(groups []GroupConfig) []domain.DependencyGroup {
	out := make([]domain.DependencyGroup, 0, len(groups))
	for _, g := range groups {
		kind, _ := parseGroupKind(g.Kind)
		severity, _ := parseSeverity(g.RestartOn)
		targets := make([]domain.ServicePath, len(g.Targets))
		for i, t := range g.Targets {
			targets[i] = parsePath(t)
		}
		out = append(out, domain.DependencyGroup{Kind: kind, RestartOn: severity, Targets: targets})
	}
	return out
}

func boolOr(p *bool, fallback bool) bool {
	if p == nil {
		return fallback
	}
	return *p
}

// BuildUnits registers one restarter.Unit per instance-bearing service
// path in cfg, wiring its method table from the config's command lines.
// Service-only entries (ones with declared Instances) never get a Unit of
// their own -- only concrete instances run methods; a service with no
// Instances is itself the unit (a singleton service).
func BuildUnits(cfg *Config, core *restarter.Core) {
	for _, svc := range cfg.Services {
		if len(svc.Instances) == 0 {
			registerUnit(core, domain.ServicePath{Service: svc.Name}, svc.UnitType, svc.Methods)
			continue
		}
		for _, inst := range svc.Instances {
			methods := inst.Methods
			if isZeroMethods(methods) {
				methods = svc.Methods
			}
			registerUnit(core, domain.ServicePath{Service: svc.Name, Instance: inst.Name}, inst.UnitType, methods)
		}
	}
}

func isZeroMethods(m MethodsConfig) bool {
	return m.PreStart == nil && m.Start == nil && m.PostStart == nil && m.Stop == nil && m.PostStop == nil
}

func registerUnit(core *restarter.Core, path domain.ServicePath, unitType string, methods MethodsConfig) {
	u := core.UnitAdd(path, restarter.UnitType(unitType))
	u.Methods[restarter.MethodPreStart] = buildMethod(methods.PreStart)
	u.Methods[restarter.MethodStart] = buildMethod(methods.Start)
	u.Methods[restarter.MethodPostStart] = buildMethod(methods.PostStart)
	u.Methods[restarter.MethodStop] = buildMethod(methods.Stop)
	u.Methods[restarter.MethodPostStop] = buildMethod(methods.PostStop)
}

func buildMethod(m *MethodConfig) *restarter.Method {
	if m == nil {
		return nil
	}
	return &restarter.Method{Path: m.Path, Args: m.Args, Env: m.Env}
}
