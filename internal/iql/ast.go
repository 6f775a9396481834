package iql

// QueryKind distinguishes the two statement forms.
type QueryKind string

const (
	KindFind      QueryKind = "find"
	KindSummarize QueryKind = "summarize"
)

// Target of a FIND statement.
type Target string

const (
	TargetResources  Target = "resources"
	TargetDownstream Target = "downstream"
	TargetUpstream   Target = "upstream"
)

// Aggregate functions accepted by SUMMARIZE.
type Aggregate string

const (
	AggCount Aggregate = "count"
	AggCost  Aggregate = "cost"
)

// Comparison operators accepted in predicates.
type Operator string

const (
	OpEq      Operator = "="
	OpNeq     Operator = "!="
	OpLt      Operator = "<"
	OpLte     Operator = "<="
	OpGt      Operator = ">"
	OpGte     Operator = ">="
	OpLike    Operator = "LIKE"
	OpMatches Operator = "MATCHES"
)

// Predicate is one <field> <operator> <value> clause. Predicates always
// combine with AND.
type Predicate struct {
	Field    string
	Operator Operator
	StrValue string
	NumValue float64
	IsNumber bool
	Pos      int
}

// Query is the typed AST of a single IQL statement.
type Query struct {
	Kind      QueryKind
	Target    Target
	TargetID  string // node id for downstream/upstream targets
	Where     []Predicate
	Limit     int // -1 when absent
	Aggregate Aggregate
	GroupBy   string
}

// Fields of the node schema addressable from IQL predicates. Tag values are
// addressed as tags.<key>.
var queryableFields = map[string]bool{
	"id":            true,
	"provider":      true,
	"account":       true,
	"region":        true,
	"resourceType":  true,
	"resource_type": true,
	"nativeId":      true,
	"native_id":     true,
	"name":          true,
	"status":        true,
	"owner":         true,
	"costMonthly":   true,
	"cost_monthly":  true,
}

// Numeric fields usable with <, <=, >, >=.
var numericFields = map[string]bool{
	"costMonthly":  true,
	"cost_monthly": true,
}

func isQueryableField(name string) bool {
	if queryableFields[name] {
		return true
	}
	return len(name) > len("tags.") && name[:len("tags.")] == "tags."
}
