package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxzi/campaigner/internal/recipient"
)

// ErrInactive is returned by Select for an explicitly requested recipient
// that has been deactivated
var ErrInactive = errors.New("recipient is inactive")

// Directory is the part of the recipient store a campaign reads
type Directory interface {
	ListActive(ctx context.Context) ([]recipient.Recipient, error)
	Get(ctx context.Context, id int64) (*recipient.Recipient, error)
}

// Select returns the recipients of a run: every active recipient, or with
// ids exactly those recipients in the given order. Duplicate ids are sent
// to once.
func Select(ctx context.Context, dir Directory, ids []int64) ([]recipient.Recipient, error) {
	if len(ids) == 0 {
		return dir.ListActive(ctx)
	}

	seen := make(map[int64]bool, len(ids))
	list := make([]recipient.Recipient, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		r, err := dir.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !r.IsActive {
			return nil, fmt.Errorf("%w: id %d", ErrInactive, id)
		}
		list = append(list, *r)
	}
	return list, nil
}
