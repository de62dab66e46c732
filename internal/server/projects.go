package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"obraline/internal/access"
	"obraline/internal/domain"
	"obraline/internal/engine"
)

func registerProjects(grp huma.API, eng engine.Engine) {
	huma.Register(grp, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create a project",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest
	}) (*struct{ Body domain.Project }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		opts := engine.ProjectCreateOptions{Name: input.Body.Name, ActorID: userID}
		if input.Body.Client != nil {
			opts.Client = *input.Body.Client
		}
		if input.Body.Location != nil {
			opts.Location = *input.Body.Location
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.StartDate != nil {
			opts.StartDate = *input.Body.StartDate
		}
		if input.Body.EndDate != nil {
			opts.EndDate = *input.Body.EndDate
		}
		p, err := eng.CreateProject(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Project }{Body: p}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List the caller's projects",
	}, func(ctx context.Context, input *struct {
		State string `query:"state" enum:"Activo,Pendiente,Finalizado," doc:"Optional state filter"`
	}) (*struct{ Body []domain.Project }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		projects, err := eng.ListProjects(ctx, userID, domain.ProjectState(input.State))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body []domain.Project }{Body: mapProjects(projects)}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Fetch a project",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{ Body domain.Project }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		p, err := eng.GetProject(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Project }{Body: p}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "finalize-project",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/finalize",
		Summary:     "Finalize a project",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{ Body domain.Project }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		p, err := eng.FinalizeProject(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Project }{Body: p}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{id}",
		Summary:       "Delete a project",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		if err := eng.DeleteProject(ctx, input.ID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "project-permissions",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/permissions",
		Summary:     "Caller's capabilities on the project",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{ Body access.Snapshot }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		snap, err := eng.Permissions(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body access.Snapshot }{Body: snap}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "project-statistics",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/statistics",
		Summary:     "Task completion summary",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{ Body engine.Statistics }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		list, err := eng.ListTasks(ctx, engine.TaskListOptions{ProjectID: input.ID, UserID: userID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body engine.Statistics }{Body: list.Statistics}, nil
	})
}

func registerMembers(grp huma.API, eng engine.Engine) {
	huma.Register(grp, huma.Operation{
		OperationID:   "invite-member",
		Method:        http.MethodPost,
		Path:          "/projects/{id}/members",
		Summary:       "Invite a user by email",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body InviteRequest
	}) (*struct{ Body domain.Membership }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		m, err := eng.Invite(ctx, input.ID, input.Body.Email, domain.Role(input.Body.Role), userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Membership }{Body: m}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/members",
		Summary:     "List accepted members",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{ Body []domain.Membership }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		members, err := eng.ListMembers(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body []domain.Membership }{Body: mapMembers(members)}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID:   "remove-member",
		Method:        http.MethodDelete,
		Path:          "/projects/{id}/members/{membershipID}",
		Summary:       "Remove a member",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ID           string `path:"id"`
		MembershipID string `path:"membershipID"`
	}) (*struct{}, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		if err := eng.RemoveMember(ctx, input.ID, input.MembershipID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "accept-invitation",
		Method:      http.MethodPost,
		Path:        "/invitations/{id}/accept",
		Summary:     "Accept a pending invitation",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{ Body domain.Membership }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		m, err := eng.AcceptInvitation(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Membership }{Body: m}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID:   "reject-invitation",
		Method:        http.MethodPost,
		Path:          "/invitations/{id}/reject",
		Summary:       "Reject a pending invitation",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		if err := eng.RejectInvitation(ctx, input.ID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
