package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docflowGM/holocron/internal/governance/authority"
	"github.com/docflowGM/holocron/internal/governance/delta"
	"github.com/docflowGM/holocron/internal/governance/intent"
	apperrors "github.com/docflowGM/holocron/internal/platform/errors"
	"github.com/docflowGM/holocron/internal/storage"
)

// toolOrigin tags mutations applied through the MCP boundary in the audit
// trail.
const toolOrigin = "mcp"

// defaultExportLimit bounds export listings when the caller gives none.
const defaultExportLimit = 100

// MutationRecordResult is the MCP projection of one audit trail entry.
type MutationRecordResult struct {
	ID             string      `json:"id" jsonschema:"mutation record identifier"`
	EntityID       string      `json:"entity_id" jsonschema:"entity the mutation targeted"`
	Seq            uint64      `json:"seq" jsonschema:"per-entity sequence number"`
	Outcome        string      `json:"outcome" jsonschema:"applied, rejected, or rolled_back"`
	Origin         string      `json:"origin" jsonschema:"call path that requested the mutation"`
	AppliedAt      string      `json:"applied_at" jsonschema:"RFC 3339 timestamp of the outcome"`
	RolledBackFrom string      `json:"rolled_back_from,omitempty" jsonschema:"id of the record this rollback undoes"`
	Reason         string      `json:"reason,omitempty" jsonschema:"host rejection reason, for rejected records"`
	Delta          delta.Delta `json:"delta" jsonschema:"the change that was attempted"`
}

func mutationRecordResult(rec storage.MutationRecord) MutationRecordResult {
	return MutationRecordResult{
		ID:             rec.ID,
		EntityID:       rec.EntityID,
		Seq:            rec.Seq,
		Outcome:        string(rec.Outcome),
		Origin:         rec.Origin,
		AppliedAt:      rec.AppliedAt.UTC().Format(time.RFC3339),
		RolledBackFrom: rec.RolledBackFrom,
		Reason:         rec.Reason,
		Delta:          rec.Delta,
	}
}

// CompileStepInput represents the MCP tool input for a step compilation.
type CompileStepInput struct {
	EntityID   string         `json:"entity_id" jsonschema:"entity the step targets"`
	Step       string         `json:"step" jsonschema:"step identifier (abilities, species, class, feats, talents, skills, force-powers, credits, level)"`
	Selections map[string]any `json:"selections" jsonschema:"step selections keyed by selection name"`
	Freebuild  bool           `json:"freebuild,omitempty" jsonschema:"relax prerequisite enforcement for sandbox builds"`
}

// CompileStepResult represents the MCP tool output for a step compilation.
type CompileStepResult struct {
	EntityID string      `json:"entity_id" jsonschema:"entity the delta targets"`
	Delta    delta.Delta `json:"delta" jsonschema:"compiled change, not yet applied"`
}

// CompileStepTool describes the compile_step MCP tool.
func CompileStepTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "compile_step",
		Description: "Compiles character step selections into a delta without applying it",
	}
}

// CompileStepHandler compiles a step against the entity's current snapshot.
func CompileStepHandler(k Kernel) mcp.ToolHandlerFor[CompileStepInput, CompileStepResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CompileStepInput) (*mcp.CallToolResult, CompileStepResult, error) {
		if input.EntityID == "" {
			return nil, CompileStepResult{}, toolError(authority.ErrEmptyEntityID)
		}
		snap, err := k.Host.TakeSnapshot(ctx, input.EntityID)
		if err != nil {
			return nil, CompileStepResult{}, toolError(err)
		}
		d, err := k.Compiler.CompileStep(snap, input.Step, intent.Selections(input.Selections), intent.StepOptions{Freebuild: input.Freebuild})
		if err != nil {
			return nil, CompileStepResult{}, toolError(err)
		}
		return nil, CompileStepResult{EntityID: input.EntityID, Delta: d}, nil
	}
}

// ApplyStepInput represents the MCP tool input for a compile-and-apply.
type ApplyStepInput struct {
	EntityID   string         `json:"entity_id" jsonschema:"entity the step targets"`
	Step       string         `json:"step" jsonschema:"step identifier (abilities, species, class, feats, talents, skills, force-powers, credits, level)"`
	Selections map[string]any `json:"selections" jsonschema:"step selections keyed by selection name"`
	Freebuild  bool           `json:"freebuild,omitempty" jsonschema:"relax prerequisite enforcement for sandbox builds"`
}

// ApplyStepResult represents the MCP tool output for a compile-and-apply.
type ApplyStepResult struct {
	Record MutationRecordResult `json:"record" jsonschema:"audit record for the applied mutation"`
}

// ApplyStepTool describes the apply_step MCP tool.
func ApplyStepTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "apply_step",
		Description: "Compiles character step selections and applies the resulting delta through the mutation authority",
	}
}

// ApplyStepHandler compiles a step and routes the delta through the
// authority, so the apply is serialized and audited like any other mutation.
func ApplyStepHandler(k Kernel) mcp.ToolHandlerFor[ApplyStepInput, ApplyStepResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ApplyStepInput) (*mcp.CallToolResult, ApplyStepResult, error) {
		if input.EntityID == "" {
			return nil, ApplyStepResult{}, toolError(authority.ErrEmptyEntityID)
		}
		snap, err := k.Host.TakeSnapshot(ctx, input.EntityID)
		if err != nil {
			return nil, ApplyStepResult{}, toolError(err)
		}
		d, err := k.Compiler.CompileStep(snap, input.Step, intent.Selections(input.Selections), intent.StepOptions{Freebuild: input.Freebuild})
		if err != nil {
			return nil, ApplyStepResult{}, toolError(err)
		}
		rec, err := k.Authority.ApplyDelta(ctx, input.EntityID, d, authority.Meta{Origin: toolOrigin})
		if err != nil {
			return nil, ApplyStepResult{}, toolError(err)
		}
		return nil, ApplyStepResult{Record: mutationRecordResult(rec)}, nil
	}
}

// RollbackMutationInput represents the MCP tool input for a rollback.
type RollbackMutationInput struct {
	MutationID string `json:"mutation_id" jsonschema:"id of the mutation record to roll back"`
}

// RollbackMutationResult represents the MCP tool output for a rollback.
type RollbackMutationResult struct {
	Record MutationRecordResult `json:"record" jsonschema:"audit record for the rollback mutation"`
}

// RollbackMutationTool describes the rollback_mutation MCP tool.
func RollbackMutationTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "rollback_mutation",
		Description: "Rolls back an applied mutation by applying its inverse as a new audited mutation",
	}
}

// RollbackMutationHandler loads the record and applies its inverse.
func RollbackMutationHandler(k Kernel) mcp.ToolHandlerFor[RollbackMutationInput, RollbackMutationResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RollbackMutationInput) (*mcp.CallToolResult, RollbackMutationResult, error) {
		rec, err := k.Mutations.GetMutation(ctx, input.MutationID)
		if err != nil {
			return nil, RollbackMutationResult{}, toolError(err)
		}
		rollback, err := k.Authority.Rollback(ctx, rec)
		if err != nil {
			return nil, RollbackMutationResult{}, toolError(err)
		}
		return nil, RollbackMutationResult{Record: mutationRecordResult(rollback)}, nil
	}
}

// EntitySnapshotInput represents the MCP tool input for a snapshot read.
type EntitySnapshotInput struct {
	EntityID string `json:"entity_id" jsonschema:"entity to snapshot"`
}

// EntitySnapshotResult represents the MCP tool output for a snapshot read.
type EntitySnapshotResult struct {
	EntityID    string                  `json:"entity_id" jsonschema:"entity the snapshot captures"`
	Fields      map[string]any          `json:"fields" jsonschema:"scalar entity fields"`
	Collections map[string][]delta.Item `json:"collections" jsonschema:"embedded item collections"`
	TakenAt     string                  `json:"taken_at" jsonschema:"RFC 3339 capture timestamp"`
}

// EntitySnapshotTool describes the entity_snapshot MCP tool.
func EntitySnapshotTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "entity_snapshot",
		Description: "Reads an immutable snapshot of an entity's current state",
	}
}

// EntitySnapshotHandler captures the entity's current state.
func EntitySnapshotHandler(k Kernel) mcp.ToolHandlerFor[EntitySnapshotInput, EntitySnapshotResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input EntitySnapshotInput) (*mcp.CallToolResult, EntitySnapshotResult, error) {
		snap, err := k.Host.TakeSnapshot(ctx, input.EntityID)
		if err != nil {
			return nil, EntitySnapshotResult{}, toolError(err)
		}
		return nil, EntitySnapshotResult{
			EntityID:    snap.EntityID,
			Fields:      snap.Fields,
			Collections: snap.Collections,
			TakenAt:     snap.TakenAt.UTC().Format(time.RFC3339),
		}, nil
	}
}

// MutationLogExportInput represents the MCP tool input for an audit export.
type MutationLogExportInput struct {
	EntityID string `json:"entity_id" jsonschema:"entity whose audit trail to export"`
	AfterSeq uint64 `json:"after_seq,omitempty" jsonschema:"export records with sequence numbers greater than this"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum records to return (default 100)"`
}

// MutationLogExportResult represents the MCP tool output for an audit export.
type MutationLogExportResult struct {
	EntityID string                 `json:"entity_id" jsonschema:"entity the records belong to"`
	Records  []MutationRecordResult `json:"records" jsonschema:"audit records ordered by sequence"`
}

// MutationLogExportTool describes the mutation_log_export MCP tool.
func MutationLogExportTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "mutation_log_export",
		Description: "Exports an entity's append-only mutation audit trail",
	}
}

// MutationLogExportHandler lists audit records in sequence order.
func MutationLogExportHandler(k Kernel) mcp.ToolHandlerFor[MutationLogExportInput, MutationLogExportResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input MutationLogExportInput) (*mcp.CallToolResult, MutationLogExportResult, error) {
		if input.EntityID == "" {
			return nil, MutationLogExportResult{}, toolError(authority.ErrEmptyEntityID)
		}
		limit := input.Limit
		if limit <= 0 {
			limit = defaultExportLimit
		}
		records, err := k.Mutations.ListMutations(ctx, input.EntityID, input.AfterSeq, limit)
		if err != nil {
			return nil, MutationLogExportResult{}, toolError(err)
		}
		out := make([]MutationRecordResult, len(records))
		for i, rec := range records {
			out[i] = mutationRecordResult(rec)
		}
		return nil, MutationLogExportResult{EntityID: input.EntityID, Records: out}, nil
	}
}

// ViolationResult is the MCP projection of one recorded violation.
type ViolationResult struct {
	ID           string         `json:"id" jsonschema:"violation identifier"`
	Layer        string         `json:"layer" jsonschema:"monitor layer that reported it"`
	Severity     string         `json:"severity" jsonschema:"INFO, WARN, ERROR, or CRITICAL"`
	Message      string         `json:"message" jsonschema:"human-readable description"`
	Context      map[string]any `json:"context,omitempty" jsonschema:"layer-specific structured detail"`
	AggregateKey string         `json:"aggregate_key,omitempty" jsonschema:"grouping key for repeated occurrences"`
	EntityID     string         `json:"entity_id,omitempty" jsonschema:"affected entity, when identifiable"`
	Count        int            `json:"count" jsonschema:"occurrence count carried by summary records"`
	Timestamp    string         `json:"timestamp" jsonschema:"RFC 3339 observation timestamp"`
}

// ViolationsExportInput represents the MCP tool input for a violation export.
type ViolationsExportInput struct {
	Layer       string `json:"layer,omitempty" jsonschema:"restrict to one monitor layer"`
	EntityID    string `json:"entity_id,omitempty" jsonschema:"restrict to one entity"`
	MinSeverity string `json:"min_severity,omitempty" jsonschema:"lowest severity to include (INFO, WARN, ERROR, CRITICAL)"`
	Since       string `json:"since,omitempty" jsonschema:"RFC 3339 lower bound on observation time"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum violations to return (default 100)"`
}

// ViolationsExportResult represents the MCP tool output for a violation export.
type ViolationsExportResult struct {
	Violations []ViolationResult `json:"violations" jsonschema:"violations ordered by observation time"`
}

// ViolationsExportTool describes the violations_export MCP tool.
func ViolationsExportTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "violations_export",
		Description: "Exports recorded governance violations, optionally filtered by layer, entity, severity, or time",
	}
}

// ViolationsExportHandler lists violations matching the filter.
func ViolationsExportHandler(k Kernel) mcp.ToolHandlerFor[ViolationsExportInput, ViolationsExportResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ViolationsExportInput) (*mcp.CallToolResult, ViolationsExportResult, error) {
		filter := storage.ViolationFilter{
			Layer:       input.Layer,
			EntityID:    input.EntityID,
			MinSeverity: storage.Severity(input.MinSeverity),
			Limit:       input.Limit,
		}
		if filter.MinSeverity != "" && filter.MinSeverity.Rank() < 0 {
			return nil, ViolationsExportResult{}, apperrors.WithMetadata(apperrors.CodeValidationWrongType,
				"min_severity is not a known severity", map[string]string{"Selection": "min_severity"})
		}
		if input.Since != "" {
			since, err := time.Parse(time.RFC3339, input.Since)
			if err != nil {
				return nil, ViolationsExportResult{}, apperrors.WrapWithMetadata(apperrors.CodeValidationWrongType,
					"since is not an RFC 3339 timestamp", map[string]string{"Selection": "since"}, err)
			}
			filter.Since = since
		}
		if filter.Limit <= 0 {
			filter.Limit = defaultExportLimit
		}

		violations, err := k.Violations.ListViolations(ctx, filter)
		if err != nil {
			return nil, ViolationsExportResult{}, toolError(err)
		}
		out := make([]ViolationResult, len(violations))
		for i, v := range violations {
			out[i] = ViolationResult{
				ID:           v.ID,
				Layer:        v.Layer,
				Severity:     string(v.Severity),
				Message:      v.Message,
				Context:      v.Context,
				AggregateKey: v.AggregateKey,
				EntityID:     v.EntityID,
				Count:        v.Count,
				Timestamp:    v.Timestamp.UTC().Format(time.RFC3339),
			}
		}
		return nil, ViolationsExportResult{Violations: out}, nil
	}
}

// ViolationSummaryInput represents the MCP tool input for a monitor summary.
type ViolationSummaryInput struct{}

// ViolationSummaryResult represents the MCP tool output for a monitor summary.
type ViolationSummaryResult struct {
	Mode       string            `json:"mode" jsonschema:"monitor mode (off, monitor, enforce)"`
	Total      int               `json:"total" jsonschema:"total violations admitted this run"`
	ByLayer    map[string]int    `json:"by_layer" jsonschema:"violation counts per layer"`
	BySeverity map[string]int    `json:"by_severity" jsonschema:"violation counts per severity"`
	Layers     map[string]string `json:"layers" jsonschema:"lifecycle state per registered layer"`
}

// ViolationSummaryTool describes the violation_summary MCP tool.
func ViolationSummaryTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "violation_summary",
		Description: "Summarizes runtime monitor activity: mode, layer states, and violation counts",
	}
}

// ViolationSummaryHandler reports the monitor's aggregate counters.
func ViolationSummaryHandler(k Kernel) mcp.ToolHandlerFor[ViolationSummaryInput, ViolationSummaryResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ ViolationSummaryInput) (*mcp.CallToolResult, ViolationSummaryResult, error) {
		byLayer, bySeverity, total := k.Monitor.Summary()
		severities := make(map[string]int, len(bySeverity))
		for severity, count := range bySeverity {
			severities[string(severity)] = count
		}
		states := map[string]string{}
		for id, state := range k.Monitor.LayerStates() {
			states[id] = string(state)
		}
		return nil, ViolationSummaryResult{
			Mode:       string(k.Monitor.Mode()),
			Total:      total,
			ByLayer:    byLayer,
			BySeverity: severities,
			Layers:     states,
		}, nil
	}
}
