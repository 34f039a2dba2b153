package metadata

// Operator is one of the Brainy Field Operators.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpNotEquals  Operator = "notEquals"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpBetween    Operator = "between"
	OpOneOf      Operator = "oneOf"
	OpNoneOf     Operator = "noneOf"
	OpContains   Operator = "contains"
	OpExcludes   Operator = "excludes"
	OpHasAll     Operator = "hasAll"
	OpLength     Operator = "length"
	OpExists     Operator = "exists"
	OpMissing    Operator = "missing"
	OpMatches    Operator = "matches"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"

	OpAllOf Operator = "allOf"
	OpAnyOf Operator = "anyOf"
	OpNot   Operator = "not"
)

// Filter is one node of a predicate tree. Leaf nodes set Field/Op/Value
// (or Values/Low/High as the operator requires); logical nodes set Op to
// one of allOf/anyOf/not and populate Sub.
type Filter struct {
	Field string
	Op    Operator
	Value any
	Values []any
	Low, High any
	Sub []Filter
}

func isLogical(op Operator) bool {
	switch op {
	case OpAllOf, OpAnyOf, OpNot:
		return true
	default:
		return false
	}
}
