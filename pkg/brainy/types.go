// Package brainy is the database facade: the single entry point that
// wires the write-ahead log, storage adapter, HNSW index, metadata
// index, graph adjacency, unified cache, cleanup coordinator, and query
// engine into one embeddable handle, exposing the public noun/verb/query
// API surface.
package brainy

// NounTypes is the closed enumeration add_noun validates noun_type
// against.
var NounTypes = []string{
	"Person", "Organization", "Document", "Event", "Concept", "Thing",
	"Place", "Product", "Project", "Task", "Skill", "Tag", "Topic",
	"Asset", "Account", "Device", "Dataset", "Model", "Workflow",
	"Policy", "Contract", "Ticket", "Comment", "Message", "Session",
	"Team", "Role", "Permission", "Resource", "Other",
}

// VerbTypes is the closed enumeration add_verb validates verb_type
// against.
var VerbTypes = []string{
	"RelatedTo", "PartOf", "Contains", "Owns", "CreatedBy", "AssignedTo",
	"DependsOn", "References", "Follows", "Blocks", "Mentions",
	"Supersedes", "DerivedFrom", "SimilarTo", "ConflictsWith",
}

func isNounType(t string) bool { return containsStr(NounTypes, t) }
func isVerbType(t string) bool { return containsStr(VerbTypes, t) }

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
