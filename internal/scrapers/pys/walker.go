package pys

import (
	"context"
)

// Walker lists the options at each level of the cascade
// type -> segment -> family -> class.
type Walker struct {
	session *Session
}

func NewWalker(session *Session) Walker {
	return Walker{session: session}
}

// ListTypes (re)opens the form and reads the top level select.
func (w Walker) ListTypes(ctx context.Context) ([]Option, error) {
	snapshot, err := w.session.Open(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.SelectOptions(SelectType), nil
}

func (w Walker) ListSegments(ctx context.Context, typeKey string) ([]Option, error) {
	return w.list(ctx, typeKey)
}

func (w Walker) ListFamilies(ctx context.Context, typeKey, segmentKey string) ([]Option, error) {
	return w.list(ctx, typeKey, segmentKey)
}

func (w Walker) ListClasses(ctx context.Context, typeKey, segmentKey, familyKey string) ([]Option, error) {
	return w.list(ctx, typeKey, segmentKey, familyKey)
}

// list posts back a change of the deepest key in path, carrying every
// ancestor selection, and reads the select that change populates.
func (w Walker) list(ctx context.Context, path ...string) ([]Option, error) {
	level := cascadeLevels[len(path)-1]

	overrides := map[string]string{
		FieldScriptManager: level.script,
	}
	for i, key := range path {
		overrides[cascadeLevels[i].eventTarget] = key
	}

	snapshot, err := w.session.Postback(ctx, level.eventTarget, overrides)
	if err != nil {
		return nil, err
	}
	return snapshot.SelectOptions(level.child), nil
}
