package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"obraline/internal/domain"
	"obraline/internal/engine"
)

func registerTasks(grp huma.API, eng engine.Engine) {
	huma.Register(grp, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{id}/tasks",
		Summary:       "Create a task, consuming allocated materials",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body CreateTaskRequest
	}) (*struct{ Body domain.Task }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		opts := engine.TaskCreateOptions{
			ProjectID:  input.ID,
			Title:      input.Body.Title,
			AssigneeID: input.Body.AssigneeID,
			Priority:   domain.Priority(input.Body.Priority),
			DueDate:    input.Body.DueDate,
			ActorID:    userID,
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		for _, m := range input.Body.Materials {
			opts.Materials = append(opts.Materials, engine.MaterialRequest{MaterialID: m.MaterialID, Quantity: m.Quantity})
		}
		t, err := eng.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Task }{Body: t}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/tasks",
		Summary:     "Classified task listing",
	}, func(ctx context.Context, input *struct {
		ID       string `path:"id"`
		Priority string `query:"priority" enum:"alta,media,baja," doc:"Optional priority filter"`
		Assignee string `query:"assignee_id" doc:"Optional assignee filter"`
	}) (*struct{ Body engine.TaskList }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		list, err := eng.ListTasks(ctx, engine.TaskListOptions{
			ProjectID:  input.ID,
			Priority:   domain.Priority(input.Priority),
			AssigneeID: input.Assignee,
			UserID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body engine.TaskList }{Body: list}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Fetch a task with materials and date history",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{ Body domain.Task }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		t, err := eng.GetTask(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Task }{Body: t}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "start-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/start",
		Summary:     "Move a pending task to in progress",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{ Body domain.Task }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		t, err := eng.StartTask(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Task }{Body: t}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/complete",
		Summary:     "Complete a task with comment and evidence",
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body CompleteTaskRequest
	}) (*struct{ Body domain.Task }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		t, err := eng.CompleteTask(ctx, input.ID, userID, input.Body.Comment, input.Body.EvidenceURL)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Task }{Body: t}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "change-task-due-date",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/due-date",
		Summary:     "Reschedule a task",
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body ChangeDueDateRequest
	}) (*struct{ Body domain.Task }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		var reason string
		if input.Body.Reason != nil {
			reason = *input.Body.Reason
		}
		t, err := eng.ChangeDueDate(ctx, input.ID, userID, input.Body.DueDate, reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Task }{Body: t}, nil
	})
}

func registerMaterials(grp huma.API, eng engine.Engine) {
	huma.Register(grp, huma.Operation{
		OperationID:   "create-material",
		Method:        http.MethodPost,
		Path:          "/projects/{id}/materials",
		Summary:       "Register material inventory",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body CreateMaterialRequest
	}) (*struct{ Body domain.Material }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		opts := engine.MaterialCreateOptions{
			ProjectID: input.ID,
			Name:      input.Body.Name,
			Quantity:  input.Body.Quantity,
			ActorID:   userID,
		}
		if input.Body.Unit != nil {
			opts.Unit = *input.Body.Unit
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		m, err := eng.CreateMaterial(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Material }{Body: m}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "list-materials",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/materials",
		Summary:     "List material inventory",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{ Body []domain.Material }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		materials, err := eng.ListMaterials(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body []domain.Material }{Body: mapMaterials(materials)}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "set-material-stock",
		Method:      http.MethodPost,
		Path:        "/materials/{id}/stock",
		Summary:     "Set material stock",
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body SetStockRequest
	}) (*struct{ Body domain.Material }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		m, err := eng.SetMaterialQuantity(ctx, input.ID, input.Body.Quantity, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Material }{Body: m}, nil
	})
}
