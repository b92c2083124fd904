package registry

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
)

type fixedParser struct {
	core.BaseParser
	score float64
}

func (p *fixedParser) CanParse(preview []byte, filename string) float64 { return p.score }

func (p *fixedParser) ParseStream(ctx context.Context, chunks core.ChunkSource, progress core.ProgressFunc) core.Stream {
	return core.NewDeferredStream(ctx, nil, nil)
}

type otherParser struct{ fixedParser }

type panickyParser struct{ fixedParser }

func (p *panickyParser) CanParse(preview []byte, filename string) float64 { panic("boom") }

func newFixed(tool string, score float64, versions ...string) *fixedParser {
	return &fixedParser{
		BaseParser: core.BaseParser{Meta: core.ParserMetadata{
			ToolName:          tool,
			SupportedVersions: versions,
			FileExtensions:    []string{".JSON", ".csv"},
		}},
		score: score,
	}
}

func newRegistry() *Registry {
	return New(WithLogger(&core.NopLogger{}))
}

func TestRegister_Validation(t *testing.T) {
	r := newRegistry()

	var nilParser *fixedParser
	assert.True(t, serrors.IsRegistrationError(r.Register(nil)))
	assert.True(t, serrors.IsRegistrationError(r.Register(nilParser)))
	assert.True(t, serrors.IsRegistrationError(r.Register(newFixed("", 0.5))))

	bad := newFixed("x", 0.5)
	bad.Meta.ConfidenceThreshold = 1.5
	assert.True(t, serrors.IsRegistrationError(r.Register(bad)))

	nan := newFixed("x", 0.5)
	nan.Meta.ConfidenceThreshold = math.NaN()
	assert.True(t, serrors.IsRegistrationError(r.Register(nan)))

	assert.Equal(t, 0, r.Len())
}

func TestRegister_DuplicateLeavesRegistryUnchanged(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(newFixed("bandit", 0.9)))
	require.NoError(t, r.Register(&otherParser{*newFixed("bandit", 0.4)}))

	before := r.CompatibleParsers([]byte("{}"), "x.json")

	err := r.Register(newFixed("bandit", 0.1))
	require.Error(t, err)
	assert.True(t, serrors.IsRegistrationError(err))

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, before, r.CompatibleParsers([]byte("{}"), "x.json"))

	assert.Panics(t, func() { r.MustRegister(newFixed("bandit", 0.2)) })
}

func TestCompatibleParsers_StableRanking(t *testing.T) {
	r := newRegistry()
	a := newFixed("a", 0.5)
	b := &otherParser{*newFixed("b", 0.9)}
	c := newFixed("c", 0.5)
	zero := newFixed("zero", 0)
	over := newFixed("over", 7)
	for _, p := range []core.Parser{a, b, c, zero, over, &panickyParser{*newFixed("panicky", 1)}} {
		require.NoError(t, r.Register(p))
	}

	got := r.CompatibleParsers(nil, "f.json")
	require.Len(t, got, 4)

	tools := make([]string, len(got))
	for i, cand := range got {
		tools[i] = cand.Metadata.ToolName
		assert.GreaterOrEqual(t, cand.Confidence, 0.0)
		assert.LessOrEqual(t, cand.Confidence, 1.0)
	}
	assert.Equal(t, []string{"over", "b", "a", "c"}, tools)
	assert.Equal(t, 1.0, got[0].Confidence)
}

func TestParserForTool(t *testing.T) {
	r := newRegistry()
	v2 := newFixed("prowler", 0.5, "2.0", "2.9")
	v3 := &otherParser{*newFixed("prowler", 0.5, "3.0", "3.1")}
	require.NoError(t, r.Register(v2))
	require.NoError(t, r.Register(v3))

	p, ok := r.ParserForTool("prowler", "")
	require.True(t, ok)
	assert.Same(t, v2, p)

	p, ok = r.ParserForTool("Prowler", "3.1.4")
	require.True(t, ok)
	assert.Same(t, v3, p)

	_, ok = r.ParserForTool("prowler", "4.0")
	assert.False(t, ok)

	_, ok = r.ParserForTool("missing", "")
	assert.False(t, ok)
}

func TestListingAndUnregister(t *testing.T) {
	r := newRegistry()
	a := newFixed("zeta", 0.5)
	b := &otherParser{*newFixed("alpha", 0.5)}
	b.Meta.FileExtensions = []string{".csv", ".sarif"}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	assert.Equal(t, []string{"alpha", "zeta"}, r.SupportedTools())
	assert.Equal(t, []string{".csv", ".json", ".sarif"}, r.SupportedExtensions())

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "zeta", list[0].ToolName)

	assert.True(t, r.Unregister(a))
	assert.False(t, r.Unregister(a))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{"alpha"}, r.SupportedTools())
}

func TestConcurrentLookups(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(newFixed("a", 0.5)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.CompatibleParsers([]byte("x"), "f")
				r.SupportedTools()
			}
		}()
	}
	wg.Wait()
}

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
}
