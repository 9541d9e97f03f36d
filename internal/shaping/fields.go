package shaping

import "strings"

// Canonical field reference names used by the shaping pipeline.
const (
	FieldID           = "System.Id"
	FieldTitle        = "System.Title"
	FieldState        = "System.State"
	FieldWorkItemType = "System.WorkItemType"
	FieldAssignedTo   = "System.AssignedTo"
	FieldCreatedBy    = "System.CreatedBy"
	FieldChangedBy    = "System.ChangedBy"
	FieldAreaPath     = "System.AreaPath"
	FieldIteration    = "System.IterationPath"
	FieldTags         = "System.Tags"
	FieldStoryPoints  = "Microsoft.VSTS.Scheduling.StoryPoints"
	FieldActivatedBy  = "Microsoft.VSTS.Common.ActivatedBy"
	FieldResolvedBy   = "Microsoft.VSTS.Common.ResolvedBy"
	FieldClosedBy     = "Microsoft.VSTS.Common.ClosedBy"

	// DefaultNamespace is the prefix the backend assigns to core fields.
	DefaultNamespace = "System"

	// DefaultGroupField is used when the caller does not pick a grouping field.
	DefaultGroupField = FieldState
)

// identityFields hold identity objects in raw work item payloads.
var identityFields = []string{
	FieldAssignedTo,
	FieldCreatedBy,
	FieldChangedBy,
	FieldActivatedBy,
	FieldResolvedBy,
	FieldClosedBy,
}

// IsIdentityField reports whether the canonical field carries identity values.
func IsIdentityField(field string) bool {
	for _, f := range identityFields {
		if strings.EqualFold(f, field) {
			return true
		}
	}
	return false
}

// recognizedNamespaces are the prefixes that mark a field reference as already
// qualified.
var recognizedNamespaces = []string{
	"System.",
	"Microsoft.VSTS.",
	"Microsoft.TeamFoundation.",
	"Custom.",
}

// FieldAlias maps a bare or mis-namespaced field token to its canonical name.
type FieldAlias struct {
	Alias     string `json:"alias"`
	Canonical string `json:"canonical"`
}

// fieldAliasTable is built once and never mutated. Order is the iteration order
// used for diagnostics.
var fieldAliasTable = []FieldAlias{
	{"Id", "System.Id"},
	{"Title", "System.Title"},
	{"State", "System.State"},
	{"Reason", "System.Reason"},
	{"WorkItemType", "System.WorkItemType"},
	{"AssignedTo", "System.AssignedTo"},
	{"CreatedBy", "System.CreatedBy"},
	{"CreatedDate", "System.CreatedDate"},
	{"ChangedBy", "System.ChangedBy"},
	{"ChangedDate", "System.ChangedDate"},
	{"AreaPath", "System.AreaPath"},
	{"IterationPath", "System.IterationPath"},
	{"TeamProject", "System.TeamProject"},
	{"Tags", "System.Tags"},
	{"Description", "System.Description"},
	{"Parent", "System.Parent"},
	{"BoardColumn", "System.BoardColumn"},
	{"CommentCount", "System.CommentCount"},
	{"Priority", "Microsoft.VSTS.Common.Priority"},
	{"Severity", "Microsoft.VSTS.Common.Severity"},
	{"StackRank", "Microsoft.VSTS.Common.StackRank"},
	{"ValueArea", "Microsoft.VSTS.Common.ValueArea"},
	{"ActivatedBy", "Microsoft.VSTS.Common.ActivatedBy"},
	{"ActivatedDate", "Microsoft.VSTS.Common.ActivatedDate"},
	{"ResolvedBy", "Microsoft.VSTS.Common.ResolvedBy"},
	{"ResolvedDate", "Microsoft.VSTS.Common.ResolvedDate"},
	{"ClosedBy", "Microsoft.VSTS.Common.ClosedBy"},
	{"ClosedDate", "Microsoft.VSTS.Common.ClosedDate"},
	{"StateChangeDate", "Microsoft.VSTS.Common.StateChangeDate"},
	{"AcceptanceCriteria", "Microsoft.VSTS.Common.AcceptanceCriteria"},
	{"StoryPoints", "Microsoft.VSTS.Scheduling.StoryPoints"},
	{"Effort", "Microsoft.VSTS.Scheduling.Effort"},
	{"OriginalEstimate", "Microsoft.VSTS.Scheduling.OriginalEstimate"},
	{"RemainingWork", "Microsoft.VSTS.Scheduling.RemainingWork"},
	{"CompletedWork", "Microsoft.VSTS.Scheduling.CompletedWork"},
	{"StartDate", "Microsoft.VSTS.Scheduling.StartDate"},
	{"TargetDate", "Microsoft.VSTS.Scheduling.TargetDate"},
	{"FinishDate", "Microsoft.VSTS.Scheduling.FinishDate"},
	{"FoundIn", "Microsoft.VSTS.Build.FoundIn"},
	{"IntegrationBuild", "Microsoft.VSTS.Build.IntegrationBuild"},
	{"ReproSteps", "Microsoft.VSTS.TCM.ReproSteps"},
	{"SystemInfo", "Microsoft.VSTS.TCM.SystemInfo"},
}

// FieldAliases returns a copy of the alias table.
func FieldAliases() []FieldAlias {
	out := make([]FieldAlias, len(fieldAliasTable))
	copy(out, fieldAliasTable)
	return out
}

// CanonicalField resolves a field name a caller typed (a bare alias such as
// "StoryPoints" or a mis-namespaced "System.StoryPoints") to its canonical
// reference name. Names that are already qualified or unknown are returned
// trimmed but otherwise unchanged.
func CanonicalField(name string) string {
	name = strings.TrimSpace(strings.Trim(strings.TrimSpace(name), "[]"))
	if canonical, ok := defaultLookup.resolve(name); ok {
		return canonical
	}
	return name
}
