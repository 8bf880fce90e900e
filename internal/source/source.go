// Package source loads opportunity tables from files, databases and CRM
// APIs. Every adapter produces the same fixed-shape model.Table; columns
// missing from the source are reported through Table.Columns.
package source

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/analytics-studio/internal/model"
)

// Source loads one opportunity table.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	Load(ctx context.Context) (model.Table, error)
}

// LoadOrEmpty loads src and degrades any failure to an empty table. An empty
// table is the pipeline's no-data case, not an error.
func LoadOrEmpty(ctx context.Context, src Source) model.Table {
	if src == nil {
		return model.Table{}
	}
	t, err := src.Load(ctx)
	if err != nil {
		zap.L().Warn("source: load failed, continuing with no data",
			zap.String("source", src.Name()),
			zap.Error(err),
		)
		return model.Table{}
	}
	zap.L().Debug("source: loaded",
		zap.String("source", src.Name()),
		zap.Int("records", len(t.Records)),
	)
	return t
}

// Static serves a fixed table. Plays use it when a caller passes records
// inline.
type Static struct {
	Table model.Table
}

func (Static) Name() string { return "static" }

func (s Static) Load(context.Context) (model.Table, error) {
	return s.Table, nil
}
