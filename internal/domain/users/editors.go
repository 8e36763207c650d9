package users

import (
	"context"

	"github.com/rotisserie/eris"

	"wikiloult/app/internal/domain/wiki"
)

// editorRegistry exposes the registry to the page store.
type editorRegistry struct {
	users Service
}

// EditorRegistry adapts a users Service to the wiki.EditorRegistry contract.
func EditorRegistry(users Service) (wiki.EditorRegistry, error) {
	if users == nil {
		return nil, eris.New("users service is required")
	}
	return &editorRegistry{users: users}, nil
}

func (r *editorRegistry) EnsureRegistered(ctx context.Context, cookie string) error {
	_, err := r.users.Register(ctx, cookie)
	return err
}

func (r *editorRegistry) IsAllowed(ctx context.Context, cookie string) (bool, error) {
	return r.users.IsAllowed(ctx, cookie)
}

func (r *editorRegistry) RecordEdit(ctx context.Context, edit wiki.Edit) error {
	return r.users.RecordEdit(ctx, edit.EditorCookie, EditRef{
		EditID:   edit.ID,
		PageName: edit.PageName,
		EditedAt: edit.EditedAt,
	})
}
