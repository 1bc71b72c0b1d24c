package updater

import (
	"context"

	"github.com/pterolink/pterolink/domain"
)

// NopRenderer always resolves and renders nothing. Useful when running
// without a chat frontend attached.
type NopRenderer struct{}

func (NopRenderer) Resolve(ctx context.Context, sub Subscription) (bool, error) {
	return true, nil
}

func (NopRenderer) Render(ctx context.Context, sub Subscription, detail *domain.ServerDetails, usage *domain.ResourceUsage) error {
	return nil
}
