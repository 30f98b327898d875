package pull

import (
	"context"
	"fmt"
	"strings"

	"pys-backend/internal/components/telemetry"
	"pys-backend/internal/scrapers/pys"
	"pys-backend/internal/taxonomy"
)

const (
	report_generate_empty     = "generate.empty-options"
	report_generate_duplicate = "generate.duplicate-key"
)

// Cascade lists the options of each level of the selector cascade,
// pys.Walker implements it.
type Cascade interface {
	ListTypes(ctx context.Context) ([]pys.Option, error)
	ListSegments(ctx context.Context, typeKey string) ([]pys.Option, error)
	ListFamilies(ctx context.Context, typeKey, segmentKey string) ([]pys.Option, error)
	ListClasses(ctx context.Context, typeKey, segmentKey, familyKey string) ([]pys.Option, error)
}

type generator struct {
	cascade     Cascade
	tel         telemetry.API
	seenClasses map[string]struct{}
}

// Generate walks the whole cascade depth first. Any failure aborts the walk,
// a partial tree is never returned. Class keys are unique across the
// returned tree, later duplicates are dropped and reported.
func Generate(ctx context.Context, cascade Cascade, tel telemetry.API) (taxonomy.Tree, error) {
	g := generator{
		cascade:     cascade,
		tel:         tel,
		seenClasses: map[string]struct{}{},
	}

	typeOpts, err := cascade.ListTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list types: %w", err)
	}

	tree := taxonomy.Tree{}
	for _, t := range g.filter("types", nil, typeOpts) {
		segments, err := g.segments(ctx, t.Key)
		if err != nil {
			return nil, err
		}
		tree = append(tree, taxonomy.Type{Key: t.Key, Name: t.Label, Segments: segments})
	}
	return tree, nil
}

func (g generator) segments(ctx context.Context, typeKey string) ([]taxonomy.Segment, error) {
	opts, err := g.cascade.ListSegments(ctx, typeKey)
	if err != nil {
		return nil, fmt.Errorf("list segments of %s: %w", typeKey, err)
	}

	out := []taxonomy.Segment{}
	for _, s := range g.filter("segments", []string{typeKey}, opts) {
		families, err := g.families(ctx, typeKey, s.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, taxonomy.Segment{Key: s.Key, Name: s.Label, Families: families})
	}
	return out, nil
}

func (g generator) families(ctx context.Context, typeKey, segmentKey string) ([]taxonomy.Family, error) {
	opts, err := g.cascade.ListFamilies(ctx, typeKey, segmentKey)
	if err != nil {
		return nil, fmt.Errorf("list families of %s/%s: %w", typeKey, segmentKey, err)
	}

	out := []taxonomy.Family{}
	for _, f := range g.filter("families", []string{typeKey, segmentKey}, opts) {
		classes, err := g.classes(ctx, typeKey, segmentKey, f.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, taxonomy.Family{Key: f.Key, Name: f.Label, Classes: classes})
	}
	return out, nil
}

func (g generator) classes(ctx context.Context, typeKey, segmentKey, familyKey string) ([]taxonomy.Class, error) {
	opts, err := g.cascade.ListClasses(ctx, typeKey, segmentKey, familyKey)
	if err != nil {
		return nil, fmt.Errorf("list classes of %s/%s/%s: %w", typeKey, segmentKey, familyKey, err)
	}

	path := []string{typeKey, segmentKey, familyKey}
	out := []taxonomy.Class{}
	for _, c := range g.filter("classes", path, opts) {
		if _, seen := g.seenClasses[c.Key]; seen {
			g.tel.ReportWarning(report_generate_duplicate, "class", c.Key, strings.Join(path, "/"))
			continue
		}
		g.seenClasses[c.Key] = struct{}{}
		out = append(out, taxonomy.Class{Key: c.Key, Name: c.Label})
	}
	return out, nil
}

// filter drops placeholder entries and repeated sibling keys, an empty
// result is reported since it usually means the form silently reset.
func (g generator) filter(level string, path []string, opts []pys.Option) []pys.Option {
	out := make([]pys.Option, 0, len(opts))
	seen := map[string]struct{}{}
	for _, opt := range opts {
		if opt.Key == pys.PlaceholderKey || opt.Key == "" {
			continue
		}
		if _, ok := seen[opt.Key]; ok {
			g.tel.ReportWarning(report_generate_duplicate, level, opt.Key, strings.Join(path, "/"))
			continue
		}
		seen[opt.Key] = struct{}{}
		out = append(out, opt)
	}
	if len(out) == 0 {
		g.tel.ReportWarning(report_generate_empty, level, strings.Join(path, "/"))
	}
	return out
}
