package functions

import (
	"context"
	"errors"
	"fmt"
)

// Domain function names. These are the intent names the analyzer emits and
// the tool names exposed on the function-calling path.
const (
	FnCreateTeam       = "CreateTeam"
	FnAddTeamMember    = "AddTeamMember"
	FnCreateOKRSession = "CreateOKRSession"
	FnCreateObjective  = "CreateObjective"
	FnCreateKeyResult  = "CreateKeyResult"
	FnCreateTask       = "CreateTask"
	FnUpdateTaskStatus = "UpdateTaskStatus"
	FnDeleteObjective  = "DeleteObjective"

	// FnGeneralConversation is the analyzer's fallback intent. Its handler
	// is a no-op that contributes no batch message, so the turn flows on
	// to a plain conversational response.
	FnGeneralConversation = "GeneralConversation"
)

// Sentinel errors for domain function execution.
var (
	// ErrMissingParameter indicates a required parameter was not supplied.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrPermissionDenied indicates the caller's role does not allow the
	// operation.
	ErrPermissionDenied = errors.New("permission denied")
)

// DomainService is the OKR business layer the core executes against. It is
// an external collaborator; the core only defines the contract.
type DomainService interface {
	CreateTeam(ctx context.Context, uc UserContext, name, description string) (id string, err error)
	AddTeamMember(ctx context.Context, uc UserContext, teamID, member string) error
	CreateOKRSession(ctx context.Context, uc UserContext, title, startDate, endDate string) (id string, err error)
	CreateObjective(ctx context.Context, uc UserContext, sessionID, title, description string) (id string, err error)
	CreateKeyResult(ctx context.Context, uc UserContext, objectiveID, title, target string) (id string, err error)
	CreateTask(ctx context.Context, uc UserContext, keyResultID, title, assignee string) (id string, err error)
	UpdateTaskStatus(ctx context.Context, uc UserContext, taskID, status string) error
	DeleteObjective(ctx context.Context, uc UserContext, objectiveID string) error
}

// managerRoles may create and modify OKR entities; admin-only operations
// additionally exclude RoleTeamManager.
func roleAtLeastManager(r Role) bool {
	switch r {
	case RoleSuperAdmin, RoleOrganizationAdmin, RoleTeamManager:
		return true
	default:
		return false
	}
}

func roleAtLeastAdmin(r Role) bool {
	return r == RoleSuperAdmin || r == RoleOrganizationAdmin
}

// require extracts a mandatory parameter.
func require(params map[string]string, key string) (string, error) {
	v := params[key]
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingParameter, key)
	}
	return v, nil
}

// RegisterOKRFunctions registers all domain handlers against the service.
func RegisterOKRFunctions(r *Registry, svc DomainService) {
	r.Register(FnCreateTeam, func(ctx context.Context, params map[string]string, uc UserContext) (*Result, error) {
		if !roleAtLeastAdmin(uc.Role) {
			return nil, fmt.Errorf("%w: %s cannot create teams", ErrPermissionDenied, uc.Role)
		}
		name, err := require(params, "name")
		if err != nil {
			return nil, err
		}
		id, err := svc.CreateTeam(ctx, uc, name, params["description"])
		if err != nil {
			return nil, fmt.Errorf("creating team: %w", err)
		}
		return &Result{
			Payload:    map[string]string{"teamId": id, "name": name},
			EntityType: "Team",
			EntityID:   id,
			Operation:  "create",
			Message:    fmt.Sprintf("Team %q created.", name),
		}, nil
	})

	r.Register(FnAddTeamMember, func(ctx context.Context, params map[string]string, uc UserContext) (*Result, error) {
		if !roleAtLeastManager(uc.Role) {
			return nil, fmt.Errorf("%w: %s cannot manage team members", ErrPermissionDenied, uc.Role)
		}
		teamID, err := require(params, "teamId")
		if err != nil {
			return nil, err
		}
		member, err := require(params, "member")
		if err != nil {
			return nil, err
		}
		if err := svc.AddTeamMember(ctx, uc, teamID, member); err != nil {
			return nil, fmt.Errorf("adding team member: %w", err)
		}
		return &Result{
			EntityType: "Team",
			EntityID:   teamID,
			Operation:  "update",
			Message:    fmt.Sprintf("Added %s to the team.", member),
		}, nil
	})

	r.Register(FnCreateOKRSession, func(ctx context.Context, params map[string]string, uc UserContext) (*Result, error) {
		if !roleAtLeastManager(uc.Role) {
			return nil, fmt.Errorf("%w: %s cannot create OKR sessions", ErrPermissionDenied, uc.Role)
		}
		title, err := require(params, "title")
		if err != nil {
			return nil, err
		}
		id, err := svc.CreateOKRSession(ctx, uc, title, params["startDate"], params["endDate"])
		if err != nil {
			return nil, fmt.Errorf("creating OKR session: %w", err)
		}
		return &Result{
			Payload:    map[string]string{"sessionId": id, "title": title},
			EntityType: "OKRSession",
			EntityID:   id,
			Operation:  "create",
			Message:    fmt.Sprintf("OKR session %q created.", title),
		}, nil
	})

	r.Register(FnCreateObjective, func(ctx context.Context, params map[string]string, uc UserContext) (*Result, error) {
		if !roleAtLeastManager(uc.Role) {
			return nil, fmt.Errorf("%w: %s cannot create objectives", ErrPermissionDenied, uc.Role)
		}
		title, err := require(params, "title")
		if err != nil {
			return nil, err
		}
		id, err := svc.CreateObjective(ctx, uc, params["sessionId"], title, params["description"])
		if err != nil {
			return nil, fmt.Errorf("creating objective: %w", err)
		}
		return &Result{
			Payload:    map[string]string{"objectiveId": id, "title": title},
			EntityType: "Objective",
			EntityID:   id,
			Operation:  "create",
			Message:    fmt.Sprintf("Objective %q created.", title),
		}, nil
	})

	r.Register(FnCreateKeyResult, func(ctx context.Context, params map[string]string, uc UserContext) (*Result, error) {
		if !roleAtLeastManager(uc.Role) {
			return nil, fmt.Errorf("%w: %s cannot create key results", ErrPermissionDenied, uc.Role)
		}
		title, err := require(params, "title")
		if err != nil {
			return nil, err
		}
		id, err := svc.CreateKeyResult(ctx, uc, params["objectiveId"], title, params["target"])
		if err != nil {
			return nil, fmt.Errorf("creating key result: %w", err)
		}
		return &Result{
			Payload:    map[string]string{"keyResultId": id, "title": title},
			EntityType: "KeyResult",
			EntityID:   id,
			Operation:  "create",
			Message:    fmt.Sprintf("Key result %q created.", title),
		}, nil
	})

	r.Register(FnCreateTask, func(ctx context.Context, params map[string]string, uc UserContext) (*Result, error) {
		title, err := require(params, "title")
		if err != nil {
			return nil, err
		}
		id, err := svc.CreateTask(ctx, uc, params["keyResultId"], title, params["assignee"])
		if err != nil {
			return nil, fmt.Errorf("creating task: %w", err)
		}
		return &Result{
			Payload:    map[string]string{"taskId": id, "title": title},
			EntityType: "Task",
			EntityID:   id,
			Operation:  "create",
			Message:    fmt.Sprintf("Task %q created.", title),
		}, nil
	})

	r.Register(FnUpdateTaskStatus, func(ctx context.Context, params map[string]string, uc UserContext) (*Result, error) {
		taskID, err := require(params, "taskId")
		if err != nil {
			return nil, err
		}
		status, err := require(params, "status")
		if err != nil {
			return nil, err
		}
		if err := svc.UpdateTaskStatus(ctx, uc, taskID, status); err != nil {
			return nil, fmt.Errorf("updating task: %w", err)
		}
		return &Result{
			EntityType: "Task",
			EntityID:   taskID,
			Operation:  "update",
			Message:    fmt.Sprintf("Task status set to %s.", status),
		}, nil
	})

	r.Register(FnGeneralConversation, func(_ context.Context, _ map[string]string, _ UserContext) (*Result, error) {
		// No domain effect and no message; the conversational reply
		// comes from the model, not from the batch.
		return &Result{Operation: "none"}, nil
	})

	r.Register(FnDeleteObjective, func(ctx context.Context, params map[string]string, uc UserContext) (*Result, error) {
		if !roleAtLeastManager(uc.Role) {
			return nil, fmt.Errorf("%w: %s cannot delete objectives", ErrPermissionDenied, uc.Role)
		}
		objectiveID, err := require(params, "objectiveId")
		if err != nil {
			return nil, err
		}
		// Destructive operations never fire without an explicit
		// confirmation turn.
		if params["confirmed"] != "true" {
			return &Result{
				EntityType:        "Objective",
				EntityID:          objectiveID,
				Operation:         "delete",
				NeedsConfirmation: true,
				Message: fmt.Sprintf("Deleting objective %s removes its key results and tasks. "+
					"Please confirm to proceed.", objectiveID),
			}, nil
		}
		if err := svc.DeleteObjective(ctx, uc, objectiveID); err != nil {
			return nil, fmt.Errorf("deleting objective: %w", err)
		}
		return &Result{
			EntityType: "Objective",
			EntityID:   objectiveID,
			Operation:  "delete",
			Message:    "Objective deleted.",
		}, nil
	})
}
