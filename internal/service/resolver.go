package service

import (
	"context"
	"errors"
	"fmt"

	"clubportal/internal/model"
)

// ErrRunRequired is returned when a run_specific notification is created
// without a run id. An absent run id is a caller error, never a broadcast.
var ErrRunRequired = errors.New("run_specific notifications require a run id")

// MemberDirectory is the slice of the member store the resolver needs.
type MemberDirectory interface {
	ActiveMembers(ctx context.Context, affiliatedOnly bool) ([]model.Member, error)
	BookedMembers(ctx context.Context, runID int) ([]model.Member, error)
	ElevatedActiveMembers(ctx context.Context) ([]model.Member, error)
}

// RecipientResolver computes the audience of a notification. Pure lookup,
// no side effects; an empty result is a valid no-op, not an error.
type RecipientResolver struct {
	members MemberDirectory
}

func NewRecipientResolver(members MemberDirectory) *RecipientResolver {
	return &RecipientResolver{members: members}
}

// Resolve returns the recipient set for a notification type.
// general/urgent address all active members (optionally affiliated only);
// run_specific addresses members with a live booking on the run.
func (r *RecipientResolver) Resolve(ctx context.Context, notificationType string, runID *int, affiliatedOnly bool) ([]model.Member, error) {
	switch notificationType {
	case model.TypeGeneral, model.TypeUrgent:
		return r.members.ActiveMembers(ctx, affiliatedOnly)
	case model.TypeRunSpecific:
		if runID == nil {
			return nil, ErrRunRequired
		}
		return r.members.BookedMembers(ctx, *runID)
	default:
		return nil, fmt.Errorf("unknown notification type %q", notificationType)
	}
}

// ElevatedRecipients returns the digest audience: active LIRFs and admins.
// This deliberately ignores each member's email opt-out flag: the digest
// is a coverage-safety alert, not a discretionary announcement.
func (r *RecipientResolver) ElevatedRecipients(ctx context.Context) ([]model.Member, error) {
	return r.members.ElevatedActiveMembers(ctx)
}
