package branch

import (
	"context"
	"fmt"

	"github.com/fulmenhq/convoy/pkg/logger"
)

// Git is the subset of version-control operations Sync needs
type Git interface {
	CurrentBranch(ctx context.Context) (string, error)
	CheckoutTracking(ctx context.Context, remote, branch string) error
	ResetHard(ctx context.Context, remote, branch string) error
	CheckoutTag(ctx context.Context, tag string) error
}

// SyncAction records which destructive operation Sync performed
type SyncAction string

const (
	ActionCheckout SyncAction = "checkout"
	ActionReset    SyncAction = "reset"
	ActionDetach   SyncAction = "detach"
)

// Sync forces the working tree onto rev. Local edits are discarded.
//
// Branch targets are checked out tracking remote/branch when another branch
// is current, or hard-reset to remote/branch when already current. Tag
// targets are checked out detached.
func Sync(ctx context.Context, g Git, remote string, rev Revision) (SyncAction, error) {
	if rev.Kind == KindTag {
		if err := g.CheckoutTag(ctx, rev.Name); err != nil {
			return "", err
		}
		return ActionDetach, nil
	}

	current, err := g.CurrentBranch(ctx)
	if err != nil {
		return "", fmt.Errorf("query current branch: %w", err)
	}

	if current != rev.Name {
		logger.Info("switching branch", logger.String("from", current), logger.String("to", rev.Name))
		if err := g.CheckoutTracking(ctx, remote, rev.Name); err != nil {
			return "", err
		}
		return ActionCheckout, nil
	}

	if err := g.ResetHard(ctx, remote, rev.Name); err != nil {
		return "", err
	}
	return ActionReset, nil
}
