package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
	"github.com/core-tools/hsu-svcmgr-go/pkg/logging"
	"github.com/core-tools/hsu-svcmgr-go/pkg/notebus"
)

func testLogger() logging.Logger {
	return logging.NewLogger("test", logging.LogFuncs{
		Debugf: func(string, ...interface{}) {},
		Infof:  func(string, ...interface{}) {},
		Warnf:  func(string, ...interface{}) {},
		Errorf: func(string, ...interface{}) {},
	})
}

func instPath(svc, inst string) domain.ServicePath {
	return domain.ServicePath{Service: svc, Instance: inst}
}

func TestVertexSetupRejectsCycle(t *testing.T) {
	repo := domain.NewStaticRepository()
	a := instPath("a", "i")
	b := instPath("b", "i")

	repo.Put(domain.ServiceDescriptor{
		Path: a, IsEnabled: true,
		Groups: []domain.DependencyGroup{{Kind: domain.GroupRequireAll, Targets: []domain.ServicePath{b}}},
	})
	repo.Put(domain.ServiceDescriptor{
		Path: b, IsEnabled: true,
		Groups: []domain.DependencyGroup{{Kind: domain.GroupRequireAll, Targets: []domain.ServicePath{a}}},
	})

	g := New(repo, notebus.New(), testLogger())
	va := g.InstallInst(a)
	vb := g.InstallInst(b)

	require.NoError(t, g.VertexSetup(va))
	require.NoError(t, g.VertexSetup(vb))

	// a's group -> b edge exists; b's group -> a edge must have been
	// rejected as cyclic, so b's dependency group has no targets.
	var bGroup *Vertex
	for _, h := range vb.Dependencies {
		if g.at(h).Kind == VertexGroup {
			bGroup = g.at(h)
		}
	}
	require.NotNil(t, bGroup)
	assert.Empty(t, bGroup.Dependencies)
}

func TestVertexSetupIsIdempotent(t *testing.T) {
	repo := domain.NewStaticRepository()
	a := instPath("a", "i")
	repo.Put(domain.ServiceDescriptor{Path: a, IsEnabled: true})

	g := New(repo, notebus.New(), testLogger())
	v := g.InstallInst(a)

	require.NoError(t, g.VertexSetup(v))
	depsAfterFirst := len(v.Dependencies)
	require.NoError(t, g.VertexSetup(v))
	assert.Equal(t, depsAfterFirst, len(v.Dependencies))
}

func TestSatisfiabilityTable(t *testing.T) {
	repo := domain.NewStaticRepository()
	g := New(repo, notebus.New(), testLogger())

	mk := func(state VertexState) *Vertex {
		v := &Vertex{Handle: Handle(len(g.vertices)), Kind: VertexInstance, State: state}
		g.vertices = append(g.vertices, v)
		return v
	}

	assert.Equal(t, Unsatisfied, g.Satisfiability(mk(Uninitialised), false))
	assert.Equal(t, Unsatisfied, g.Satisfiability(mk(Uninitialised), true))
	assert.Equal(t, Unsatisfiable, g.Satisfiability(mk(Disabled), false))
	assert.Equal(t, Unsatisfiable, g.Satisfiability(mk(Disabled), true))
	assert.Equal(t, Unsatisfied, g.Satisfiability(mk(Offline), false))
	assert.Equal(t, Unsatisfiable, g.Satisfiability(mk(Maintenance), false))
	assert.Equal(t, Satisfied, g.Satisfiability(mk(Online), false))
	assert.Equal(t, Satisfied, g.Satisfiability(mk(Degraded), true))
}

func TestOfflineVertexRecursiveDependsOnGroup(t *testing.T) {
	repo := domain.NewStaticRepository()
	dep := instPath("dep", "i")
	owner := instPath("owner", "i")
	repo.Put(domain.ServiceDescriptor{Path: dep, IsEnabled: true})
	repo.Put(domain.ServiceDescriptor{
		Path: owner, IsEnabled: true,
		Groups: []domain.DependencyGroup{{Kind: domain.GroupRequireAll, Targets: []domain.ServicePath{dep}}},
	})

	g := New(repo, notebus.New(), testLogger())
	vdep := g.InstallInst(dep)
	vowner := g.InstallInst(owner)
	require.NoError(t, g.VertexSetup(vdep))
	require.NoError(t, g.VertexSetup(vowner))

	vowner.State = Offline
	// dep is Uninitialised (never started): group is merely unsatisfied,
	// not unsatisfiable, so the owner is Unsatisfied rather than pruned.
	assert.Equal(t, Unsatisfied, g.Satisfiability(vowner, true))

	vdep.State = Disabled
	// dep now Unsatisfiable outright: group is Unsatisfiable too.
	assert.Equal(t, Unsatisfiable, g.Satisfiability(vowner, true))

	vdep.State = Online
	assert.Equal(t, Unsatisfied, g.Satisfiability(vowner, true))
}

func TestCanComeUpRequiresEnabledAndSatisfiedGroups(t *testing.T) {
	repo := domain.NewStaticRepository()
	dep := instPath("dep", "i")
	owner := instPath("owner", "i")
	repo.Put(domain.ServiceDescriptor{Path: dep, IsEnabled: true})
	repo.Put(domain.ServiceDescriptor{
		Path: owner, IsEnabled: true,
		Groups: []domain.DependencyGroup{{Kind: domain.GroupRequireAll, Targets: []domain.ServicePath{dep}}},
	})

	g := New(repo, notebus.New(), testLogger())
	vdep := g.InstallInst(dep)
	vowner := g.InstallInst(owner)
	require.NoError(t, g.VertexSetup(vdep))
	require.NoError(t, g.VertexSetup(vowner))

	assert.False(t, g.CanComeUp(vowner), "dep not online yet")

	vdep.State = Online
	assert.True(t, g.CanComeUp(vowner))

	vowner.ToOffline = true
	assert.False(t, g.CanComeUp(vowner))
}

func TestStateChangeOnlineBringsUpDependent(t *testing.T) {
	repo := domain.NewStaticRepository()
	dep := instPath("dep", "i")
	owner := instPath("owner", "i")
	repo.Put(domain.ServiceDescriptor{Path: dep, IsEnabled: true})
	repo.Put(domain.ServiceDescriptor{
		Path: owner, IsEnabled: true,
		Groups: []domain.DependencyGroup{{Kind: domain.GroupRequireAll, Targets: []domain.ServicePath{dep}}},
	})

	bus := notebus.New()
	g := New(repo, bus, testLogger())
	vdep := g.InstallInst(dep)
	vowner := g.InstallInst(owner)
	require.NoError(t, g.VertexSetup(vdep))
	require.NoError(t, g.VertexSetup(vowner))

	g.ProcessNote(domain.NewStateChange(dep, domain.StateChangeOnline, domain.SeverityNone))

	var notes []domain.Note
	bus.DrainAll(func(n domain.Note) { notes = append(notes, n) })

	require.Len(t, notes, 1)
	assert.Equal(t, domain.NoteKindStateChange, notes[0].Kind)
	assert.Equal(t, owner, notes[0].Path)
	assert.Equal(t, domain.StateChangeOnline, notes[0].StateChangeSub())
}

func TestExcludeAllUnsatisfiableWhenTargetRunning(t *testing.T) {
	repo := domain.NewStaticRepository()
	conflict := instPath("conflict", "i")
	owner := instPath("owner", "i")
	repo.Put(domain.ServiceDescriptor{Path: conflict, IsEnabled: true})
	repo.Put(domain.ServiceDescriptor{
		Path: owner, IsEnabled: true,
		Groups: []domain.DependencyGroup{{Kind: domain.GroupExcludeAll, Targets: []domain.ServicePath{conflict}}},
	})

	g := New(repo, notebus.New(), testLogger())
	vconflict := g.InstallInst(conflict)
	vowner := g.InstallInst(owner)
	require.NoError(t, g.VertexSetup(vconflict))
	require.NoError(t, g.VertexSetup(vowner))

	assert.Equal(t, Satisfied, g.groupsSatisfiable(vowner, true))

	vconflict.State = Online
	assert.Equal(t, Unsatisfiable, g.groupsSatisfiable(vowner, true))
}

func TestCanGoDownRootExemptFromStoppingRequirement(t *testing.T) {
	repo := domain.NewStaticRepository()
	root := instPath("root", "i")
	dependent := instPath("dependent", "i")
	repo.Put(domain.ServiceDescriptor{Path: root, IsEnabled: true})
	repo.Put(domain.ServiceDescriptor{
		Path: dependent, IsEnabled: true,
		Groups: []domain.DependencyGroup{{Kind: domain.GroupRequireAll, Targets: []domain.ServicePath{root}}},
	})

	g := New(repo, notebus.New(), testLogger())
	vroot := g.InstallInst(root)
	vdependent := g.InstallInst(dependent)
	require.NoError(t, g.VertexSetup(vroot))
	require.NoError(t, g.VertexSetup(vdependent))

	vroot.State = Online
	vdependent.State = Online

	assert.False(t, g.CanGoDown(vroot), "dependent still running and not shutting down")

	vdependent.ToOffline = true
	assert.True(t, g.CanGoDown(vroot))
}
