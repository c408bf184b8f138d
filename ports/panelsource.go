package ports

import (
	"context"

	"transitcausal/domain/panel"
)

// PanelSource loads an observational panel from some backing store. Each
// adapter owns its own column-mapping rules; the pipeline only sees the
// finished panel.
type PanelSource interface {
	Load(ctx context.Context) (*panel.Panel, error)
}
